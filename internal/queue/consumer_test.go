package queue

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type recordingMail struct {
	to, subject, body string
	err               error
}

func (m *recordingMail) Send(to, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return m.err
}

func readLog(t *testing.T, dir string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, "activity.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(b)
}

func TestHandleMessageCreatedLogsAndMails(t *testing.T) {
	dir := t.TempDir()
	mail := &recordingMail{}
	c := &Consumer{LogDir: dir, Mail: mail, AppURL: "https://pets.example.com"}

	body, _ := json.Marshal(MessageCreatedEvent{
		ConsultationID: "room-1", MessageID: "m-1", SenderID: "7",
		RecipientEmail: "vet@clinic.com", MessageType: "text", Preview: "<b>limping</b>",
		CreatedAt: time.Now(),
	})
	if err := c.Handle(MessageCreatedQueue, body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if mail.to != "vet@clinic.com" || !strings.Contains(mail.body, "https://pets.example.com/consultation/room-1") {
		t.Fatalf("unexpected mail %+v", mail)
	}
	if strings.Contains(mail.body, "<b>") {
		t.Fatalf("preview must be escaped: %s", mail.body)
	}
	if got := readLog(t, dir); !strings.Contains(got, "message_id=m-1") {
		t.Fatalf("log line missing: %s", got)
	}
}

func TestMailFailureStillRecordsEvent(t *testing.T) {
	dir := t.TempDir()
	c := &Consumer{LogDir: dir, Mail: &recordingMail{err: errors.New("smtp down")}}
	body, _ := json.Marshal(MessageCreatedEvent{ConsultationID: "r", MessageID: "m", RecipientEmail: "a@b.c"})
	if err := c.Handle(MessageCreatedQueue, body); err != nil {
		t.Fatalf("mail failure should not fail the event: %v", err)
	}
	if !strings.Contains(readLog(t, dir), "consultation_id=r") {
		t.Fatalf("event not recorded")
	}
}

func TestHandleAvailabilityAndRejects(t *testing.T) {
	dir := t.TempDir()
	c := &Consumer{LogDir: dir}
	body, _ := json.Marshal(VetAvailabilityChangedEvent{VetID: "v-1", IsOnline: false})
	if err := c.Handle(VetAvailabilityQueue, body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(readLog(t, dir), "vet_id=v-1 | online=false") {
		t.Fatalf("availability not logged")
	}
	if err := c.Handle(VetAvailabilityQueue, []byte("{")); err == nil {
		t.Fatalf("malformed body accepted")
	}
	if err := c.Handle("unknown", []byte("{}")); err == nil {
		t.Fatalf("unknown queue accepted")
	}
}
