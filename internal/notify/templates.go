package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

const ReadySubject = "Order ready"

var readyTmpl = template.Must(template.New("order_ready_email").Parse(`Hello,

Your TAK server {{ .ServerName }} is up and running.

Instructions for getting devices connected are available at:

{{ .URL }}

This message was sent automatically, please do not reply.
`))

type ReadyData struct {
	ServerName string
	URL        string
}

// ReadyMessage renders the mail sent once an instance's certificate API answers.
func ReadyMessage(to string, data ReadyData) (Message, error) {
	var buf bytes.Buffer
	if err := readyTmpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render ready mail: %w", err)
	}
	return Message{To: to, Subject: ReadySubject, Body: buf.String()}, nil
}
