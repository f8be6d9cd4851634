package office

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHost struct {
	texts  []string
	tables [][][]string
	opts   []TableOptions
	err    error
}

func (h *recordingHost) InsertText(_ context.Context, text string, _ TextOptions) error {
	h.texts = append(h.texts, text)
	return h.err
}

func (h *recordingHost) InsertTable(_ context.Context, rows [][]string, opts TableOptions) error {
	h.tables = append(h.tables, rows)
	h.opts = append(h.opts, opts)
	return h.err
}

func (h *recordingHost) InsertTextReplacingSelection(_ context.Context, text string) error {
	h.texts = append(h.texts, text)
	return h.err
}

func TestParseTable(t *testing.T) {
	md := "Here you go:\n\n| Region | Sales |\n|---|---:|\n| North | 120 |\n| South | 95 |\n"
	assert.Equal(t, [][]string{
		{"Region", "Sales"},
		{"North", "120"},
		{"South", "95"},
	}, ParseTable(md))

	tsv := "name\tqty\napples\t3\n"
	assert.Equal(t, [][]string{{"name", "qty"}, {"apples", "3"}}, ParseTable(tsv))

	assert.Empty(t, ParseTable("just some prose\nwith two lines"))
}

func TestIsTableLike(t *testing.T) {
	assert.True(t, IsTableLike("a | b"))
	assert.True(t, IsTableLike("1. first\n2. second\n3. third"))
	assert.False(t, IsTableLike("Total: 5"))
	assert.False(t, IsTableLike("hello"))
}

func TestInsertTable(t *testing.T) {
	host := &recordingHost{}
	require.NoError(t, Insert(context.Background(), host, "| a | b |\n| 1 | 2 |", FormatTable))
	require.Len(t, host.tables, 1)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, host.tables[0])
	assert.True(t, host.opts[0].HasHeaders)
	assert.Empty(t, host.texts)
}

func TestInsertTableFallsBackToText(t *testing.T) {
	host := &recordingHost{}
	require.NoError(t, Insert(context.Background(), host, "no table here", FormatTable))
	assert.Empty(t, host.tables)
	assert.Equal(t, []string{"no table here"}, host.texts)
}

func TestInsertSelection(t *testing.T) {
	host := &recordingHost{}
	require.NoError(t, Insert(context.Background(), host, "Dear team,", FormatSelection))
	assert.Equal(t, []string{"Dear team,"}, host.texts)
	assert.Empty(t, host.tables)

	host.err = errors.New("no selection")
	assert.ErrorContains(t, Insert(context.Background(), host, "x", FormatSelection), "no selection")
}

func TestInsertDetectsFormat(t *testing.T) {
	host := &recordingHost{}
	require.NoError(t, Insert(context.Background(), host, "| a | b |\n| 1 | 2 |", ""))
	require.Len(t, host.tables, 1)

	require.NoError(t, Insert(context.Background(), host, "Plain answer.", ""))
	assert.Equal(t, []string{"Plain answer."}, host.texts)

	assert.Equal(t, FormatTable, DetectFormat("Q1: 10\nQ2: 12\nQ3: 15"))
	assert.Equal(t, FormatText, DetectFormat("hello"))
}

func TestInsertErrors(t *testing.T) {
	host := &recordingHost{err: errors.New("host gone")}
	err := Insert(context.Background(), host, "x", FormatText)
	assert.ErrorContains(t, err, "host gone")

	assert.Error(t, Insert(context.Background(), &recordingHost{}, "x", Format("pdf")))
}

func TestWriterHost(t *testing.T) {
	var buf bytes.Buffer
	h := NewWriterHost(&buf)

	require.NoError(t, h.InsertText(context.Background(), "hello", TextOptions{Worksheet: "Sheet2", Range: "B3"}))
	require.NoError(t, h.InsertTable(context.Background(), [][]string{{"Region", "Sales"}, {"North", "120"}}, TableOptions{HasHeaders: true}))

	want := "[Sheet2!B3]\nhello\n" +
		"[A1]\n" +
		"Region | Sales\n" +
		"-------+------\n" +
		"North  | 120\n"
	assert.Equal(t, want, buf.String())

	assert.Error(t, h.InsertTable(context.Background(), nil, TableOptions{}))
}
