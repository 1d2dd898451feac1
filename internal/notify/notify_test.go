package notify_test

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/notify"
	"stockwatch/internal/testutil"

	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

func TestRender_LeavesUnknownPlaceholders(t *testing.T) {
	got := notify.Render("Hi {customer_name}, {unknown} {product_name}", notify.Vars{"customer_name": "Ann", "product_name": "Mug"})
	if got != "Hi Ann, {unknown} Mug" {
		t.Errorf("got %q", got)
	}
}

func TestGate_BlanksProPlaceholders(t *testing.T) {
	vars := notify.Vars{"restock_link": "https://x/y", "product_name": "Mug"}
	closed := notify.Gate(vars, license.Free)
	if closed["restock_link"] != "" || closed["po_number"] != "" || closed["product_name"] != "Mug" {
		t.Errorf("unexpected gated vars %v", closed)
	}
	if vars["restock_link"] != "https://x/y" {
		t.Error("Gate must not modify its input")
	}
	open := notify.Gate(vars, license.Pro)
	if open["restock_link"] != "https://x/y" {
		t.Errorf("expected link kept with Pro, got %v", open)
	}
}

func TestNotifier_RenderEscapesAndUsesSiteName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	settings := &database.Settings{DB: db}
	ctx := context.Background()
	settings.Set(ctx, database.KeySiteName, "Mug Shop")

	rec := &notify.RecordingMailer{}
	n := notify.New(rec, settings)
	err := n.Send(ctx, notify.TplCustomerRestock, "ann@example.com", notify.Vars{
		"customer_name": "<b>Ann</b>",
		"product_name":  "Mug",
		"product_url":   "https://shop/mug",
	}, license.Free)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	msgs := rec.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Subject != "Mug is back in stock!" {
		t.Errorf("subject = %q", m.Subject)
	}
	if strings.Contains(m.HTMLBody, "<b>Ann</b>") || !strings.Contains(m.HTMLBody, "&lt;b&gt;Ann&lt;/b&gt;") {
		t.Error("customer name was not escaped")
	}
	if !strings.Contains(m.HTMLBody, "Mug Shop") {
		t.Error("site name missing from body")
	}
	if m.EventType != notify.TplCustomerRestock {
		t.Errorf("event type = %q", m.EventType)
	}
}

func TestNotifier_SupplierAlertWithoutProHasNoLink(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := &notify.RecordingMailer{}
	n := notify.New(rec, &database.Settings{DB: db})
	r, err := n.Render(context.Background(), notify.TplSupplierAlert, notify.Vars{"restock_link": "https://secret-link"}, license.Free)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(r.Text, "secret-link") {
		t.Errorf("restock link leaked without Pro: %s", r.Text)
	}
}

func TestTemplateStore_SaveAndReset(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := &notify.TemplateStore{Settings: &database.Settings{DB: db}}
	ctx := context.Background()

	if err := store.Save(ctx, notify.Template{Name: "nope", Subject: "a", Body: "b"}); err == nil {
		t.Error("expected unknown template error")
	}
	if err := store.Save(ctx, notify.Template{Name: notify.TplCustomerRestock, Subject: "Back: {product_name}", Body: "x"}); err != nil {
		t.Fatal(err)
	}
	tpl, _ := store.Get(ctx, notify.TplCustomerRestock)
	if tpl.Subject != "Back: {product_name}" {
		t.Errorf("subject = %q", tpl.Subject)
	}
	if err := store.Reset(ctx, notify.TplCustomerRestock); err != nil {
		t.Fatal(err)
	}
	tpl, _ = store.Get(ctx, notify.TplCustomerRestock)
	if tpl.Subject != "{product_name} is back in stock!" {
		t.Errorf("expected default after reset, got %q", tpl.Subject)
	}
	all, _ := store.All(ctx)
	if len(all) != len(notify.TemplateNames()) {
		t.Errorf("All returned %d templates", len(all))
	}
}

func TestLoggingMailer_RecordsOutcome(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := &notify.RecordingMailer{FailFor: map[string]bool{"bad@example.com": true}}
	m := &notify.LoggingMailer{DB: db, Next: rec}
	ctx := context.Background()

	if err := m.Send(ctx, notify.Message{To: "ok@example.com", Subject: "s", EventType: "test"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Send(ctx, notify.Message{To: "bad@example.com", Subject: "s", EventType: "test"}); err == nil {
		t.Fatal("expected failure")
	}
	if n := testutil.CountRows(t, db, "email_log", "status='sent'"); n != 1 {
		t.Errorf("sent rows = %d", n)
	}
	if n := testutil.CountRows(t, db, "email_log", "status='failed' AND error != ''"); n != 1 {
		t.Errorf("failed rows = %d", n)
	}
}

func TestSMTPMailer_UsesSendFunc(t *testing.T) {
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	m := &notify.SMTPMailer{
		Host: "smtp.example.com", Port: 587, User: "u", Password: "p",
		From: notify.From{Name: "Shop", Address: "shop@example.com"},
		SendFunc: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotMsg = addr, to, msg
			return nil
		},
	}
	err := m.Send(context.Background(), notify.Message{
		To: "s@example.com", Subject: "PO", HTMLBody: "<p>hi</p>",
		Attachments: []notify.Attachment{{Filename: "po.html", ContentType: "text/html", Data: []byte("<html></html>")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotAddr != "smtp.example.com:587" || len(gotTo) != 1 || gotTo[0] != "s@example.com" {
		t.Errorf("addr=%s to=%v", gotAddr, gotTo)
	}
	raw := string(gotMsg)
	if !strings.Contains(raw, "multipart/mixed") || !strings.Contains(raw, `filename=po.html`) {
		t.Errorf("attachment missing from MIME:\n%s", raw)
	}
}

type fakeSES struct {
	in *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	return &sesv2.SendEmailOutput{}, nil
}

func TestSESMailer_SimpleAndRaw(t *testing.T) {
	fake := &fakeSES{}
	m := &notify.SESMailer{Client: fake, From: notify.From{Name: "Shop", Address: "shop@example.com"}}
	ctx := context.Background()

	if err := m.Send(ctx, notify.Message{To: "a@example.com", Subject: "Hi", HTMLBody: "<p>x</p>"}); err != nil {
		t.Fatal(err)
	}
	if fake.in.Content.Simple == nil || *fake.in.Content.Simple.Subject.Data != "Hi" {
		t.Errorf("expected simple content, got %+v", fake.in.Content)
	}

	if err := m.Send(ctx, notify.Message{To: "a@example.com", Subject: "PO", HTMLBody: "x",
		Attachments: []notify.Attachment{{Filename: "po.html", Data: []byte("x")}}}); err != nil {
		t.Fatal(err)
	}
	if fake.in.Content.Raw == nil || len(fake.in.Content.Raw.Data) == 0 {
		t.Error("expected raw content for attachment")
	}
}

type fakeSNS struct {
	phone, msg string
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.phone, f.msg = *in.PhoneNumber, *in.Message
	return &sns.PublishOutput{}, nil
}

func TestChannels_RoutesAndLogs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fake := &fakeSNS{}
	wa := &notify.RecordingSender{Err: errors.New("whatsapp down")}
	ch := &notify.Channels{
		DB:      db,
		Senders: map[string]notify.ChannelSender{"sms": &notify.SNSSender{Client: fake}, "whatsapp": wa},
	}
	ctx := context.Background()

	if err := ch.SendChannelMessage(ctx, "sms", "+15550100", "low stock"); err != nil {
		t.Fatalf("sms: %v", err)
	}
	if fake.phone != "+15550100" || fake.msg != "low stock" {
		t.Errorf("sns got %q %q", fake.phone, fake.msg)
	}
	if err := ch.SendChannelMessage(ctx, "whatsapp", "+15550100", "low stock"); err == nil {
		t.Error("expected whatsapp failure")
	}
	if err := ch.SendChannelMessage(ctx, "pigeon", "x", "y"); err == nil {
		t.Error("expected error for channel without sender")
	}
	if n := testutil.CountRows(t, db, "channel_log", ""); n != 3 {
		t.Errorf("channel_log rows = %d, want 3", n)
	}
	if n := testutil.CountRows(t, db, "channel_log", "status='sent'"); n != 1 {
		t.Errorf("sent rows = %d, want 1", n)
	}
}
