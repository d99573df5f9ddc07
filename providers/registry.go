package providers

import (
	"fmt"
	"sort"
	"sync"
)

// Provider turns params into a request, checks receipts against params and
// plans which response bytes to disclose
type Provider interface {
	CreateRequest(secret *HTTPProviderSecretParams, params *HTTPProviderParams) (CreateRequestResult, error)
	AssertValidProviderReceipt(receipt *Receipt, params *HTTPProviderParams) error
	GetResponseRedactions(response []byte, params *HTTPProviderParams) ([]RedactedOrHashedArraySlice, error)
	GetHostPort(params *HTTPProviderParams) (string, error)
}

// HTTPProvider is the generic HTTPS provider
type HTTPProvider struct{}

var _ Provider = HTTPProvider{}

func (HTTPProvider) CreateRequest(secret *HTTPProviderSecretParams, params *HTTPProviderParams) (CreateRequestResult, error) {
	return CreateRequest(secret, params)
}

func (HTTPProvider) AssertValidProviderReceipt(receipt *Receipt, params *HTTPProviderParams) error {
	return AssertValidProviderReceipt(receipt, params)
}

func (HTTPProvider) GetResponseRedactions(response []byte, params *HTTPProviderParams) ([]RedactedOrHashedArraySlice, error) {
	return GetResponseRedactions(response, params)
}

func (HTTPProvider) GetHostPort(params *HTTPProviderParams) (string, error) {
	return GetHostPort(params)
}

var (
	providersMu sync.RWMutex
	registry    = map[string]Provider{
		"http": HTTPProvider{},
	}
)

// RegisterProvider adds or replaces a provider under name
func RegisterProvider(name string, p Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	registry[name] = p
}

// GetProvider returns the provider registered under name
func GetProvider(name string) (Provider, error) {
	providersMu.RLock()
	defer providersMu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// ProviderNames lists registered providers in name order
func ProviderNames() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
