package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNmapWorkerValidate(t *testing.T) {
	t.Parallel()

	valid := []NmapWorker{
		{Ports: "-p-"},
		{Ports: "-p80,443,8000-9000", Arguments: "-A"},
		{Ports: "--top-ports 100"},
		{CustomCommand: "nmap -sV -oX - {{target}}"},
	}
	for _, w := range valid {
		w := w
		assert.NoError(t, w.Validate(), "%+v", w)
	}

	invalid := []NmapWorker{
		{Ports: "80,443"},
		{Ports: "-p9000-80"},
		{Ports: "-p70000"},
		{Ports: "--top-ports many"},
		{Ports: "-p-", Arguments: "-iL /etc/passwd"},
		{Ports: "-p-", Arguments: "-A; rm -rf /"},
		{CustomCommand: "masscan {{target}} -oX -"},
		{CustomCommand: "nmap -oX - 10.0.0.1"},
		{CustomCommand: "nmap {{target}}"},
		{CustomCommand: "nmap -oX - {{target}} | tee out"},
	}
	for _, w := range invalid {
		w := w
		assert.Error(t, w.Validate(), "%+v", w)
	}
}

func TestIPAddressTriggerValidate(t *testing.T) {
	t.Parallel()

	ok := IPAddressTrigger{IPAddresses: []string{"192.168.1.1", "10.0.0.0/8", "2001:db8::1"}}
	assert.NoError(t, ok.Validate())

	assert.Error(t, (&IPAddressTrigger{}).Validate(), "empty list")
	assert.Error(t, (&IPAddressTrigger{IPAddresses: []string{"not-an-ip"}}).Validate())
	assert.Error(t, (&IPAddressTrigger{IPAddresses: []string{"10.0.0.1"}, Repetition: 30}).Validate(), "repetition below minimum")
}

func TestCertstreamTriggerValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (&CertstreamTrigger{Regex: `.*\.example\.com$`}).Validate())
	assert.Error(t, (&CertstreamTrigger{}).Validate())
	assert.Error(t, (&CertstreamTrigger{Regex: `[unclosed`}).Validate())
}

func TestFFUFWorkerValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (&FFUFWorker{Wordlist: "/usr/share/wordlists/common.txt", Extensions: "php,html,js"}).Validate())
	assert.Error(t, (&FFUFWorker{Wordlist: "wordlists/common.txt"}).Validate(), "relative path")
	assert.Error(t, (&FFUFWorker{Wordlist: "/tmp/../etc/passwd"}).Validate(), "traversal")
	assert.Error(t, (&FFUFWorker{Wordlist: "/tmp/a;b"}).Validate(), "shell char")
	assert.Error(t, (&FFUFWorker{Extensions: "php,ht ml"}).Validate(), "bad extension")
}

func TestScreenshotWorkerValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (&ScreenshotWorker{Resolution: "1920x1080"}).Validate())
	assert.NoError(t, (&ScreenshotWorker{}).Validate(), "default resolution")
	assert.Error(t, (&ScreenshotWorker{Resolution: "1920*1080"}).Validate())
	assert.Error(t, (&ScreenshotWorker{Resolution: "9999x9999"}).Validate(), "above 8K")
}
