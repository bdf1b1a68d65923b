package attachment

import (
	"testing"

	"github.com/google/uuid"
)

func TestAttachmentToModel(t *testing.T) {
	t.Parallel()

	att := Attachment{
		ID:          uuid.New(),
		UploaderID:  uuid.New(),
		Filename:    "report.pdf",
		URL:         "/files/srv/chan/att/report.pdf",
		ContentType: "application/pdf",
		SizeBytes:   2048,
	}

	m := att.ToModel()
	if m.ID != att.ID {
		t.Errorf("ToModel().ID = %s, want %s", m.ID, att.ID)
	}
	if m.Filename != "report.pdf" || m.URL != att.URL {
		t.Errorf("ToModel() file fields = %+v", m)
	}
	if m.ContentType != "application/pdf" || m.SizeBytes != 2048 {
		t.Errorf("ToModel() metadata = %+v", m)
	}
}

func TestAttachmentZeroValuePending(t *testing.T) {
	t.Parallel()

	var a Attachment
	if a.MessageID != nil || a.DmMessageID != nil {
		t.Error("zero value should be pending with nil message links")
	}
	if a.ChannelID != nil {
		t.Error("zero value should have nil ChannelID")
	}
}
