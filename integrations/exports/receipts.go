package exports

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lukechampine.com/blake3"

	"epochstake/integrations/history"
)

// Format names a supported export encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// ParseFormat accepts "csv", "jsonl" or "ndjson".
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "csv":
		return FormatCSV, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	}
	return "", fmt.Errorf("exports: unsupported format %q", raw)
}

// Receipts serialises receipts in format and returns the payload with a
// blake3 checksum of it.
func Receipts(format Format, receipts []history.Receipt) ([]byte, string, error) {
	switch format {
	case FormatCSV:
		return ReceiptsCSV(receipts)
	case FormatJSONL:
		return ReceiptsJSONL(receipts)
	}
	return nil, "", fmt.Errorf("exports: unsupported format %q", format)
}

// ReceiptsCSV builds a CSV export for the supplied receipts.
func ReceiptsCSV(receipts []history.Receipt) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"id", "owner", "kind", "epoch", "amount", "reward", "total", "elapsed", "timestamp", "hash"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for _, r := range receipts {
		record := []string{
			r.ID.String(),
			r.Owner,
			r.Kind,
			fmt.Sprintf("%d", r.Epoch),
			r.Amount,
			r.Reward,
			r.Total,
			fmt.Sprintf("%d", r.Elapsed),
			time.Unix(r.Timestamp, 0).UTC().Format(time.RFC3339),
			r.Hash,
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

// ReceiptsJSONL builds a JSON Lines export for the supplied receipts.
func ReceiptsJSONL(receipts []history.Receipt) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, r := range receipts {
		payload := map[string]interface{}{
			"id":        r.ID.String(),
			"owner":     r.Owner,
			"kind":      r.Kind,
			"epoch":     r.Epoch,
			"amount":    r.Amount,
			"reward":    r.Reward,
			"total":     r.Total,
			"elapsed":   r.Elapsed,
			"timestamp": time.Unix(r.Timestamp, 0).UTC().Format(time.RFC3339),
			"hash":      r.Hash,
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
