// Package mailer renders and sends the two operator notification e-mails
// named in §6: "streaming archive started" (on disk claim) and "disk full"
// (on disk close). Template rendering is a soft dependency (§7): a failed
// render degrades the body to a fixed sentinel string but never blocks the
// archive action it accompanies, mirroring aistore's nlog convention of
// never letting an observability concern abort a data-path operation.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package mailer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	gomail "github.com/wneessen/go-mail"

	"github.com/jade-archive/datamove/internal/config"
	"github.com/jade-archive/datamove/internal/jaderr"
	"github.com/jade-archive/datamove/internal/model"
	"github.com/jade-archive/datamove/internal/nlog"
)

const (
	CreateDiskTemplate = "createArchiveDisk"
	CloseDiskTemplate  = "closeArchiveDisk"

	diskFullSubject = "Archive Disk Full Notification"
	renderErrorBody = "Something went wrong rendering the e-mail template."
)

// EmailDisk is the disk-facing view embedded in both templates' context,
// grounded on the original service's EmailDisk projection of a Disk row.
type EmailDisk struct {
	ID          int64
	Label       string
	CopyID      int
	UUID        string
	DateCreated string
	DateUpdated string
	Path        string
}

// NewEmailDisk formats a model.Disk's timestamps the way the original
// service's templates expect: "Jan 02, 2006 3:04:05 PM".
func NewEmailDisk(d *model.Disk) EmailDisk {
	const layout = "Jan 02, 2006 3:04:05 PM"
	return EmailDisk{
		ID:          d.ID,
		Label:       d.Label,
		CopyID:      d.CopyID,
		UUID:        d.UUID,
		DateCreated: d.DateCreated.Format(layout),
		DateUpdated: d.DateUpdated.Format(layout),
		Path:        d.DevicePath,
	}
}

// FleetCapacityUpdate buckets every configured mount path by its current
// status (§4.D), embedded in the disk-full e-mail so an operator sees the
// whole fleet at a glance, not just the disk that just closed.
type FleetCapacityUpdate struct {
	NotMountedPaths []string
	NotUsablePaths  []string
	AvailablePaths  []string
	InUsePaths      []string
	FinishedPaths   []string
}

// CreateDiskContext is the template context for CreateDiskTemplate.
type CreateDiskContext struct {
	Hostname    string
	DiskArchive model.DiskArchive
	Disk        EmailDisk
	FreeBytes   int64
}

// CloseDiskContext is the template context for CloseDiskTemplate.
type CloseDiskContext struct {
	Hostname      string
	DiskArchive   model.DiskArchive
	Disk          EmailDisk
	NumFilePairs  int64
	SizeFilePairs int64
	RateBytesSec  int64
	FreeBytes     int64
	TotalBytes    int64
	Capacity      FleetCapacityUpdate
}

// Mailer renders the two templates and sends SMTP mail through the relay
// named by cfg. A disabled configuration (cfg.Enabled == false) makes every
// Send* call a logged no-op, matching the original service's enabled-flag guard.
type Mailer struct {
	cfg       config.EmailConfig
	contacts  []model.Contact
	templates *template.Template
}

// New parses every template matching glob and registers the "comma" filter,
// the one custom function the source templates depend on.
func New(cfg config.EmailConfig, contacts []model.Contact, glob string) (*Mailer, error) {
	tmpl := template.New("mailer").Funcs(template.FuncMap{"comma": comma})
	tmpl, err := tmpl.ParseGlob(glob)
	if err != nil {
		return nil, &jaderr.ErrTemplate{Name: glob, Err: err}
	}
	return &Mailer{cfg: cfg, contacts: contacts, templates: tmpl}, nil
}

// comma formats an integer with thousands separators, e.g. 5952694763520 ->
// "5,952,694,763,520" - the Go equivalent of the original's num_format
// Locale::en formatting, registered as the template function "comma".
func comma(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

func (m *Mailer) render(name string, ctx any) string {
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, ctx); err != nil {
		nlog.Warningf("mailer: render %s failed, using sentinel body: %v", name, err)
		return renderErrorBody
	}
	return buf.String()
}

func (m *Mailer) recipients() []model.Contact {
	var out []model.Contact
	for _, c := range m.contacts {
		if model.NotifyRoles[c.Role] {
			out = append(out, c)
		}
	}
	return out
}

// send builds and delivers a plain-text message through the configured
// relay. A disabled configuration is a logged no-op, per §9 Open Question
// (iii): the relay is assumed trusted and unauthenticated on a closed
// network, so no TLS policy or credentials are attempted.
func (m *Mailer) send(subject, body string) error {
	if !m.cfg.Enabled {
		nlog.Warningf("mailer: email disabled, not sending %q", subject)
		return nil
	}
	recipients := m.recipients()
	if len(recipients) == 0 {
		nlog.Warningf("mailer: no JADE_ADMIN/WINTER_OVER contacts configured, not sending %q", subject)
		return nil
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return &jaderr.ErrAddress{Address: m.cfg.From, Err: err}
	}
	if err := msg.ReplyTo(m.cfg.ReplyTo); err != nil {
		return &jaderr.ErrAddress{Address: m.cfg.ReplyTo, Err: err}
	}
	for _, c := range recipients {
		if err := msg.AddToFormat(c.Name, c.Email); err != nil {
			return &jaderr.ErrAddress{Address: c.Email, Err: err}
		}
		nlog.Infof("mailer: sending %q to %s <%s>", subject, c.Name, c.Email)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(m.cfg.Host,
		gomail.WithPort(m.cfg.Port),
		gomail.WithTLSPolicy(gomail.NoTLS),
	)
	if err != nil {
		return &jaderr.ErrMail{Op: "dial", Err: err}
	}
	if err := client.DialAndSend(msg); err != nil {
		return &jaderr.ErrMail{Op: "send", Err: err}
	}
	return nil
}

// SendArchiveStarted sends the claim e-mail for a newly created disk.
func (m *Mailer) SendArchiveStarted(hostname string, archive model.DiskArchive, disk *model.Disk, freeBytes int64) error {
	body := m.render(CreateDiskTemplate, CreateDiskContext{
		Hostname:    hostname,
		DiskArchive: archive,
		Disk:        NewEmailDisk(disk),
		FreeBytes:   freeBytes,
	})
	subject := fmt.Sprintf("Streaming Archive Started on %s:%s", hostname, disk.DevicePath)
	return m.send(subject, body)
}

// SendDiskFull sends the close e-mail with a full fleet-status snapshot.
func (m *Mailer) SendDiskFull(ctx CloseDiskContext) error {
	body := m.render(CloseDiskTemplate, ctx)
	return m.send(diskFullSubject, body)
}
