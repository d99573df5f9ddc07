package providers

import (
	"errors"
	"reflect"
	"testing"
)

// TestXProviderJSONPaths extracts fields from an X (Twitter) API response
func TestXProviderJSONPaths(t *testing.T) {
	xAPIResponse := `{
  "data": {
    "user": {
      "result": {
        "rest_id": "2853538776",
        "core": {
          "created_at": "Sun Oct 12 22:06:29 +0000 2014",
          "screen_name": "LAITHALEBRAHIM"
        },
        "legacy": {
          "followers_count": 5,
          "friends_count": 71
        }
      }
    }
  }
}`

	tests := []struct {
		name         string
		jsonPath     string
		expectedText string
	}{
		{
			name:         "followers_count",
			jsonPath:     "$.data.user.result.legacy.followers_count",
			expectedText: `"followers_count": 5`,
		},
		{
			name:         "friends_count",
			jsonPath:     "$.data.user.result.legacy.friends_count",
			expectedText: `"friends_count": 71`,
		},
		{
			name:         "created_at",
			jsonPath:     "$.data.user.result.core.created_at",
			expectedText: `"created_at": "Sun Oct 12 22:06:29 +0000 2014"`,
		},
		{
			name:         "rest_id",
			jsonPath:     "$.data.user.result.rest_id",
			expectedText: `"rest_id": "2853538776"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docBytes := []byte(xAPIResponse)

			ranges, err := extractJSONValueIndexes(docBytes, tt.jsonPath)
			if err != nil {
				t.Fatalf("extractJSONValueIndexes failed for %s: %v\nJSONPath: %s", tt.name, err, tt.jsonPath)
			}
			if len(ranges) != 1 {
				t.Fatalf("expected one range for %s, got %d", tt.name, len(ranges))
			}

			r := ranges[0]
			if r.start < 0 || r.end > len(docBytes) {
				t.Fatalf("Invalid range for %s: start=%d, end=%d, docLen=%d", tt.name, r.start, r.end, len(docBytes))
			}

			if extracted := string(docBytes[r.start:r.end]); extracted != tt.expectedText {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expectedText, extracted)
			}
		})
	}
}

func TestJSONPathArrayElementsAreBareValues(t *testing.T) {
	doc := []byte(`{"tags": ["a", {"b": 1}, 3]}`)

	ranges, err := extractJSONValueIndexes(doc, "$.tags[*]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []string
	for _, r := range ranges {
		got = append(got, string(doc[r.start:r.end]))
	}
	want := []string{`"a"`, `{"b": 1}`, `3`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestJSONPathNotFound(t *testing.T) {
	doc := []byte(`{"a": 1}`)
	for _, expr := range []string{"$.b", "$.a.b.c"} {
		_, err := extractJSONValueIndexes(doc, expr)
		if !errors.Is(err, ErrSelectorNotFound) {
			t.Errorf("%s: expected selector_not_found, got %v", expr, err)
		}
	}
}

func TestJSONPathToSegments(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{path: "$", want: nil},
		{path: "$.a[1].b", want: []string{"a", "1", "b"}},
		{path: "$['items'][0]['name']", want: []string{"items", "0", "name"}},
		{path: `$["a.b"]["c"]`, want: []string{"a.b", "c"}},
		{path: "/a/1/b", want: []string{"a", "1", "b"}},
		{path: "/a~1b/c~0d", want: []string{"a/b", "c~d"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := jsonPathToSegments(tt.path); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestJSONPathCompositeMembers(t *testing.T) {
	doc := []byte("{\"a\": {\"b\": 1}, \"c\" :\n  [1, 2], \"e\": []}")

	tests := []struct {
		path string
		want string
	}{
		{path: "$.a", want: `"a": {"b": 1}`},
		{path: "$.a.b", want: `"b": 1`},
		{path: "$.c", want: "\"c\" :\n  [1, 2]"},
		{path: "$.c[1]", want: "2"},
		{path: "$.e", want: `"e": []`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ranges, err := extractJSONValueIndexes(doc, tt.path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(ranges) != 1 {
				t.Fatalf("expected one range, got %d", len(ranges))
			}
			if got := string(doc[ranges[0].start:ranges[0].end]); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
