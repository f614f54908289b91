package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	tests := []struct {
		name    string
		text    string
		cmd     string
		args    []string
		command bool
	}{
		{name: "слэш", text: "/баланс", cmd: "баланс", command: true},
		{name: "восклицательный знак с аргументами", text: "!списать 50 chat", cmd: "списать", args: []string{"50", "chat"}, command: true},
		{name: "точка и регистр", text: " .КОД promo-abcd ", cmd: "код", args: []string{"promo-abcd"}, command: true},
		{name: "имя бота", text: "/start@WalletBot ABC123", cmd: "start", args: []string{"ABC123"}, command: true},
		{name: "обычный текст", text: "привет", command: false},
		{name: "только префикс", text: "! ", command: false},
		{name: "только имя бота", text: "/@WalletBot", command: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, ok := p.ParseCommand(tt.text)
			assert.Equal(t, tt.command, ok)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.args, args)
		})
	}
}
