package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "short flag with separate value",
			args:         []string{"-c", "marksync.yaml", "--http-addr", ":8080"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c", "marksync.yaml"},
		},
		{
			name:         "long flag with equals",
			args:         []string{"--config=alt.jsonc", "-d", "postgres://"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--config=alt.jsonc"},
		},
		{
			name:         "unknown flags ignored",
			args:         []string{"-x", "1", "--y=2", "positional"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{},
		},
		{
			name:         "flag followed by another flag has no value",
			args:         []string{"-c", "-notvalue"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c"},
		},
		{
			name:         "repeated flag preserved in order",
			args:         []string{"-c", "one.yaml", "-c", "two.yaml"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c", "one.yaml", "-c", "two.yaml"},
		},
		{
			name:         "empty args",
			args:         []string{},
			allowedFlags: []string{"-c"},
			want:         []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowedFlags))
		})
	}
}

func TestConfigPath(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"short", []string{"-c", "/etc/marksync.yaml"}, "/etc/marksync.yaml"},
		{"long", []string{"--config", "/etc/marksync.jsonc"}, "/etc/marksync.jsonc"},
		{"long with equals", []string{"--http-addr", ":1", "--config=/tmp/c.json"}, "/tmp/c.json"},
		{"unknown flags ignored", []string{"-x", "1", "-y", "2"}, ""},
		{"last wins", []string{"-c", "/one.yaml", "--config", "/two.yaml"}, "/two.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigPath(tt.args))
		})
	}
}
