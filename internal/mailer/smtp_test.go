package mailer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)

func encode(t *testing.T, from string, msg Message) *mail.Message {
	t.Helper()
	m, err := BuildMessage(from, msg, testDate)
	require.NoError(t, err)
	var raw bytes.Buffer
	_, err = m.WriteTo(&raw)
	require.NoError(t, err)
	parsed, err := mail.ReadMessage(&raw)
	require.NoError(t, err)
	return parsed
}

func TestBuildMessageWithAttachment(t *testing.T) {
	pdf := bytes.Repeat([]byte("%PDF-1.7 binary\x00\xff"), 40)
	msg := encode(t, "Odyssey Billing <billing@odyssey.test>", Message{
		To:      "ap@acme.test",
		Subject: "Invoice INV-0001",
		Body:    "Hello,\nplease find your invoice attached.",
		Attachments: []Attachment{
			{Filename: "invoice-INV-0001.pdf", ContentType: "application/pdf", Data: pdf},
		},
	})

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Invoice INV-0001", subject)
	from, err := mail.ParseAddress(msg.Header.Get("From"))
	require.NoError(t, err)
	assert.Equal(t, "Odyssey Billing", from.Name)
	assert.Equal(t, "billing@odyssey.test", from.Address)
	date, err := msg.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(testDate))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	var text string
	var attached []byte
	var filenames []string
	reader := multipart.NewReader(msg.Body, params["boundary"])
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(part)
		require.NoError(t, err)
		if part.FileName() == "" {
			text = string(content)
			continue
		}
		filenames = append(filenames, part.FileName())
		assert.Equal(t, "base64", strings.ToLower(part.Header.Get("Content-Transfer-Encoding")))
		for _, line := range strings.Split(strings.TrimSpace(string(content)), "\r\n") {
			assert.LessOrEqual(t, len(line), 76)
		}
		attached, err = base64.StdEncoding.DecodeString(strings.Join(strings.Fields(string(content)), ""))
		require.NoError(t, err)
	}
	assert.Contains(t, text, "please find your invoice attached.")
	assert.Equal(t, []string{"invoice-INV-0001.pdf"}, filenames)
	assert.Equal(t, pdf, attached)
}

func TestBuildMessagePlain(t *testing.T) {
	msg := encode(t, "a@odyssey.test", Message{To: "b@acme.test", Subject: "Reminder", Body: "Pay soon"})
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mediaType)
	assert.True(t, strings.EqualFold("utf-8", params["charset"]))
	body, err := io.ReadAll(msg.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Pay soon")
}

func TestBuildMessageRejectsBadSender(t *testing.T) {
	_, err := BuildMessage("billing at odyssey", Message{To: "b@acme.test"}, testDate)
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestSendRejectsBadAddress(t *testing.T) {
	sender := NewSMTPSender(Config{Host: "127.0.0.1", Port: 1025, From: "billing@odyssey.test"})
	err := sender.Send(context.Background(), Message{To: "not an address"})
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestSendDeliversToServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	received := make(chan fakeDelivery, 1)
	go serveOnce(t, ln, received)

	port := ln.Addr().(*net.TCPAddr).Port
	sender := NewSMTPSender(Config{Host: "127.0.0.1", Port: port, From: "billing@odyssey.test"})
	err = sender.Send(context.Background(), Message{
		To:          "ap@acme.test",
		Subject:     "Invoice INV-0002",
		Body:        "Attached.",
		Attachments: []Attachment{{Filename: "invoice-INV-0002.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}},
	})
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, "<billing@odyssey.test>", got.from)
		assert.Equal(t, "<ap@acme.test>", got.to)
		assert.Contains(t, got.data, "Subject: Invoice INV-0002")
		assert.Contains(t, got.data, "invoice-INV-0002.pdf")
		assert.Contains(t, got.data, "Attached.")
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive the message")
	}
}

type fakeDelivery struct {
	from string
	to   string
	data string
}

// serveOnce speaks just enough SMTP for a single unauthenticated delivery.
// Commands it does not know, such as NOOP and RSET, are acknowledged.
func serveOnce(t *testing.T, ln net.Listener, out chan<- fakeDelivery) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

	var d fakeDelivery
	reply("220 fake.smtp ready")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 fake.smtp")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			d.from = strings.TrimSpace(strings.SplitN(line[len("MAIL FROM:"):], " ", 2)[0])
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			d.to = strings.TrimSpace(line[len("RCPT TO:"):])
			reply("250 OK")
		case cmd == "DATA":
			reply("354 end with <CRLF>.<CRLF>")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			d.data = data.String()
			reply("250 queued")
			out <- d
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}
