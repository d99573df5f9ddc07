package providers

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

var maxLogDataSize atomic.Int64

func init() {
	maxLogDataSize.Store(1024)
}

func setMaxLogDataSize(n int) {
	if n > 0 {
		maxLogDataSize.Store(int64(n))
	}
}

// truncateData truncates data to maximum allowed size for logging
func truncateData(data string) string {
	limit := int(maxLogDataSize.Load())
	if len(data) <= limit {
		return data
	}
	return data[:limit] + fmt.Sprintf("... [truncated, total: %d bytes]", len(data))
}

// dataField logs a payload as text, truncated
func dataField(key string, data []byte) zap.Field {
	return zap.String(key, truncateData(string(data)))
}

// binaryField renders up to maxBytes of data as a hex + ASCII dump. Used for
// framing bytes that failed to parse, where control characters matter.
func binaryField(key string, data []byte, maxBytes int) zap.Field {
	if maxBytes == 0 {
		maxBytes = 64
	}

	displayData := data
	if len(data) > maxBytes {
		displayData = data[:maxBytes]
	}

	var hexStr strings.Builder
	var asciiStr strings.Builder
	for i, b := range displayData {
		if i > 0 {
			hexStr.WriteByte(' ')
		}
		fmt.Fprintf(&hexStr, "%02x", b)

		if b >= 32 && b <= 126 {
			asciiStr.WriteByte(b)
		} else {
			asciiStr.WriteByte('.')
		}
	}

	message := fmt.Sprintf("(%d bytes) hex: %s ascii: %s", len(data), hexStr.String(), asciiStr.String())
	if len(data) > maxBytes {
		message += fmt.Sprintf(" [truncated, showing first %d]", maxBytes)
	}
	return zap.String(key, message)
}
