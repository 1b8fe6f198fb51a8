package scan

import (
	"errors"
	"testing"

	"kidcheck/internal/apperr"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Payload
		wantErr bool
	}{
		{name: "valid", raw: `{"family":"f1","s":"abc"}`, want: Payload{Family: "f1", Secret: "abc"}},
		{name: "extra fields ignored", raw: `{"family":"f1","s":"abc","v":2}`, want: Payload{Family: "f1", Secret: "abc"}},
		{name: "missing secret", raw: `{"family":"f1"}`, wantErr: true},
		{name: "missing family", raw: `{"s":"abc"}`, wantErr: true},
		{name: "empty fields", raw: `{"family":"","s":""}`, wantErr: true},
		{name: "not json", raw: `QR_PARENT_001`, wantErr: true},
		{name: "wrong shape", raw: `[1,2,3]`, wantErr: true},
		{name: "empty input", raw: ``, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayload(tt.raw)
			if tt.wantErr {
				var validation *apperr.ValidationError
				if !errors.As(err, &validation) {
					t.Fatalf("ParsePayload(%q) error = %v, want ValidationError", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePayload(%q) failed: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParsePayload(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestEncodeParsePayloadRoundTrip(t *testing.T) {
	original := Payload{Family: "f-77", Secret: "s3cr3t"}
	raw, err := EncodePayload(original)
	if err != nil {
		t.Fatalf("EncodePayload failed: %v", err)
	}
	got, err := ParsePayload(raw)
	if err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	if got != original {
		t.Errorf("round trip = %+v, want %+v", got, original)
	}
}
