package providers

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the receipt wire format
const (
	receiptFieldHostPort protowire.Number = 1
	receiptFieldMessage  protowire.Number = 2

	messageFieldSender   protowire.Number = 1
	messageFieldData     protowire.Number = 2
	messageFieldRedacted protowire.Number = 3
)

// MarshalReceipt encodes a receipt in protobuf wire format
func MarshalReceipt(r *Receipt) []byte {
	var b []byte
	if r.HostPort != "" {
		b = protowire.AppendTag(b, receiptFieldHostPort, protowire.BytesType)
		b = protowire.AppendString(b, r.HostPort)
	}
	for _, m := range r.Transcript {
		b = protowire.AppendTag(b, receiptFieldMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalMessage(m))
	}
	return b
}

func marshalMessage(m TranscriptMessage) []byte {
	var b []byte
	if m.Sender != 0 {
		b = protowire.AppendTag(b, messageFieldSender, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Sender))
	}
	if len(m.Message) > 0 {
		b = protowire.AppendTag(b, messageFieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Message)
	}
	if m.Redacted {
		b = protowire.AppendTag(b, messageFieldRedacted, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b
}

// UnmarshalReceipt decodes a receipt produced by MarshalReceipt. Unknown
// fields are skipped.
func UnmarshalReceipt(b []byte) (*Receipt, error) {
	r := &Receipt{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, wireError("receipt tag", n)
		}
		b = b[n:]

		switch {
		case num == receiptFieldHostPort && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, wireError("host_port", n)
			}
			r.HostPort = v
			b = b[n:]
		case num == receiptFieldMessage && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, wireError("message", n)
			}
			m, err := unmarshalMessage(v)
			if err != nil {
				return nil, err
			}
			r.Transcript = append(r.Transcript, m)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, wireError("unknown receipt field", n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

func unmarshalMessage(b []byte) (TranscriptMessage, error) {
	var m TranscriptMessage
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, wireError("message tag", n)
		}
		b = b[n:]

		switch {
		case num == messageFieldSender && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, wireError("sender", n)
			}
			if Sender(v) != SenderClient && Sender(v) != SenderServer {
				return m, newMalformedTranscriptError("invalid sender %d", v)
			}
			m.Sender = Sender(v)
			b = b[n:]
		case num == messageFieldData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return m, wireError("message data", n)
			}
			m.Message = append([]byte(nil), v...)
			b = b[n:]
		case num == messageFieldRedacted && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, wireError("redacted", n)
			}
			m.Redacted = protowire.DecodeBool(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return m, wireError("unknown message field", n)
			}
			b = b[n:]
		}
	}
	if m.Sender == 0 {
		return m, newMalformedTranscriptError("message is missing its sender")
	}
	return m, nil
}

func wireError(what string, n int) error {
	return &ProviderError{
		Type:    ErrorTypeMalformedTranscript,
		Message: "invalid " + what + " in receipt wire data",
		Cause:   protowire.ParseError(n),
	}
}
