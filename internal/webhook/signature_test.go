package webhook

import "testing"

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	secret := "s3cr3t"
	good := computeSignature(payload, secret)

	cases := []struct {
		name string
		sig  string
		want bool
	}{
		{"valid", good, true},
		{"wrong secret", computeSignature(payload, "other"), false},
		{"missing prefix", "deadbeef", false},
		{"empty header", "", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := VerifySignature(payload, c.sig, secret); got != c.want {
				t.Errorf("VerifySignature() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestVerifySignatureEmptyPayloadAlwaysFails(t *testing.T) {
	if VerifySignature(nil, "sha256=abc", "secret") {
		t.Error("expected empty payload to fail verification")
	}
}
