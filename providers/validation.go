package providers

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type providerSchemas struct {
	Parameters       string
	SecretParameters string
}

// schema files per provider name
var providerSchemaFiles = map[string]providerSchemas{
	"http": {
		Parameters:       "schemas/http.params.json",
		SecretParameters: "schemas/http.secret.json",
	},
}

// Cache of compiled schemas per schema file
var providerValidatorMap = make(map[string]*gojsonschema.Schema)
var validatorMutex sync.RWMutex

func init() {
	// url: require scheme+host; allow template placeholders {{param}}
	gojsonschema.FormatCheckers.Add("url", urlFormatChecker{})
	// binary: raw bytes, or the string form they take once decoded from JSON
	gojsonschema.FormatCheckers.Add("binary", binaryFormatChecker{})
}

type urlFormatChecker struct{}

func (urlFormatChecker) IsFormat(input interface{}) bool {
	str, ok := input.(string)
	if !ok {
		return false
	}
	if strings.Contains(str, "{{") && strings.Contains(str, "}}") {
		return true
	}
	u, err := url.Parse(str)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

type binaryFormatChecker struct{}

func (binaryFormatChecker) IsFormat(input interface{}) bool {
	switch input.(type) {
	case []byte, string:
		return true
	default:
		return false
	}
}

func compiledSchema(file string) (*gojsonschema.Schema, error) {
	validatorMutex.RLock()
	compiled, exists := providerValidatorMap[file]
	validatorMutex.RUnlock()
	if exists {
		return compiled, nil
	}

	raw, err := schemaFS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", file, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", file, err)
	}

	validatorMutex.Lock()
	providerValidatorMap[file] = schema
	validatorMutex.Unlock()
	return schema, nil
}

func validateAgainst(file string, doc interface{}, what string) error {
	schema, err := compiledSchema(file)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%s validation failed: %w", what, err)
	}
	if !result.Valid() {
		var b strings.Builder
		for _, e := range result.Errors() {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			b.WriteString(e.String())
		}
		return fmt.Errorf("%s validation failed: %s", what, b.String())
	}
	return nil
}

// ValidateProviderParams validates params against the provider's schema
func ValidateProviderParams(providerName string, params interface{}) error {
	sch, ok := providerSchemaFiles[providerName]
	if !ok {
		return fmt.Errorf("invalid provider name \"%s\"", providerName)
	}
	return validateAgainst(sch.Parameters, params, "params")
}

// ValidateProviderSecretParams validates secret params against the provider's schema
func ValidateProviderSecretParams(providerName string, secretParams interface{}) error {
	sch, ok := providerSchemaFiles[providerName]
	if !ok {
		return fmt.Errorf("invalid provider name \"%s\"", providerName)
	}
	return validateAgainst(sch.SecretParameters, secretParams, "secret params")
}

// ValidateAndUnmarshalParams validates JSON params and decodes them into target
func ValidateAndUnmarshalParams(providerName string, jsonData []byte, target interface{}) error {
	var params interface{}
	if err := json.Unmarshal(jsonData, &params); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := ValidateProviderParams(providerName, params); err != nil {
		return err
	}
	if err := json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal to target type: %w", err)
	}
	return nil
}

// ValidateAndUnmarshalSecretParams is ValidateAndUnmarshalParams for secret params
func ValidateAndUnmarshalSecretParams(providerName string, jsonData []byte, target interface{}) error {
	var params interface{}
	if err := json.Unmarshal(jsonData, &params); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := ValidateProviderSecretParams(providerName, params); err != nil {
		return err
	}
	if err := json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal to target type: %w", err)
	}
	return nil
}
