package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type credentialRow struct {
	Identity string
	Login    string
	Active   bool
	internal string
}

var rowColumns = []Column{
	{Name: "IDENTITY", Key: "Identity"},
	{Name: "LOGIN", Key: "Login"},
	{Name: "ACTIVE", Key: "Active"},
}

type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) { return r, nil }

func TestPlainFormatter(t *testing.T) {
	var out, errOut bytes.Buffer
	f := NewWithWriters("plain", &out, &errOut)

	rows := []credentialRow{
		{Identity: "secret-code", Login: "agency", Active: true, internal: "x"},
		{Identity: "default", Login: ""},
	}
	require.NoError(t, f.PrintList(rows, rowColumns))
	assert.Equal(t, "IDENTITY\tLOGIN\tACTIVE\nsecret-code\tagency\ttrue\ndefault\t\tfalse\n", out.String())

	out.Reset()
	require.NoError(t, f.Print(rows[0]))
	assert.Equal(t, "Identity\tsecret-code\nLogin\tagency\nActive\ttrue\n", out.String())

	out.Reset()
	require.NoError(t, f.Print(rawJSON(`{"a":[1,2]}`)))
	assert.JSONEq(t, `{"a":[1,2]}`, out.String())

	out.Reset()
	require.NoError(t, f.PrintText("Date\tClicks\n2024-01-01\t5"))
	assert.Equal(t, "Date\tClicks\n2024-01-01\t5\n", out.String())

	f.PrintError(errors.New("boom"))
	f.PrintHint("try again")
	assert.Equal(t, "error: boom\nhint: try again\n", errOut.String())

	assert.Error(t, f.PrintList("not a slice", rowColumns))
}

func TestPlainFormatterMaps(t *testing.T) {
	var out bytes.Buffer
	f := NewWithWriters("plain", &out, &bytes.Buffer{})

	items := []map[string]any{{"Key": "environment", "Value": "sandbox"}}
	require.NoError(t, f.PrintList(items, []Column{{Name: "KEY", Key: "Key"}, {Name: "VALUE", Key: "Value"}}))
	assert.Equal(t, "KEY\tVALUE\nenvironment\tsandbox\n", out.String())
}

func TestJSONFormatter(t *testing.T) {
	var out, errOut bytes.Buffer
	f := NewWithWriters("json", &out, &errOut)

	rows := []credentialRow{{Identity: "secret-code", Login: "agency", Active: true}}
	require.NoError(t, f.PrintList(rows, rowColumns))

	var envelope struct {
		Data  []credentialRow `json:"data"`
		Count int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &envelope))
	assert.Equal(t, 1, envelope.Count)
	assert.Equal(t, "secret-code", envelope.Data[0].Identity)

	out.Reset()
	require.NoError(t, f.PrintText("a\tb\n"))
	assert.JSONEq(t, `{"text":"a\tb\n"}`, out.String())

	f.PrintError(errors.New("boom"))
	f.PrintHint("ignored")
	assert.JSONEq(t, `{"error":"boom"}`, errOut.String())
}

func TestRichFormatterTable(t *testing.T) {
	var out bytes.Buffer
	f := NewWithWriters("rich", &out, &bytes.Buffer{})

	require.NoError(t, f.PrintList([]*credentialRow{{Identity: "secret-code", Login: "agency"}}, rowColumns))
	assert.Contains(t, out.String(), "IDENTITY")
	assert.Contains(t, out.String(), "secret-code")
	assert.Contains(t, out.String(), "agency")
}
