package config

import (
	"context"
	"path/filepath"
	"testing"
)

func TestResolveValue_AWSSM_NoCredentials(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))

	if _, err := ResolveValue(context.Background(), "${AWS_SM:nonexistent-secret}"); err == nil {
		t.Error("expected error when AWS credentials are not configured")
	}
}

func TestSecretField(t *testing.T) {
	raw := `{"username":"app","password":"pw","port":27017}`

	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"password", "pw", false},
		{"port", "27017", false},
		{"missing", "", true},
	}
	for _, tt := range tests {
		got, err := secretField("db", tt.key, raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.key)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.key, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.key, tt.want, got)
		}
	}

	if _, err := secretField("db", "x", "not json"); err == nil {
		t.Error("expected error for non-JSON secret")
	}
}
