// Package notifier emails operators when builds finish.
package notifier

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/kat-co/vala"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/build"
	"github.com/trezcool/appgen/core/events"
)

// JobReader reads build jobs, eg. *build.Service.
type JobReader interface {
	Get(ctx context.Context, id string) (build.Job, error)
}

// Subscriber is an events source, eg. *events.Hub.
type Subscriber interface {
	Subscribe(filter events.Filter) *events.Subscription
}

// Data is the email template context.
type Data struct {
	JobID       string
	Platform    string
	AppName     string
	AppKind     string
	Version     string
	BuildNumber int
	DownloadURL string
	Reason      string
}

type Notifier struct {
	hub        Subscriber
	jobs       JobReader
	mailer     core.EmailService
	recipients []mail.Address
	baseURL    string
	log        core.Logger
}

func New(hub Subscriber, jobs JobReader, mailer core.EmailService, conf *core.Config, log core.Logger) *Notifier {
	vala.BeginValidation().Validate(
		vala.IsNotNil(hub, "hub"),
		vala.IsNotNil(jobs, "jobs"),
		vala.IsNotNil(mailer, "mailer"),
		vala.IsNotNil(log, "log"),
	).CheckAndPanic()

	recipients := make([]mail.Address, 0, len(conf.Notify.Recipients))
	for _, r := range conf.Notify.Recipients {
		addr, err := mail.ParseAddress(r)
		if err != nil {
			log.Warn(fmt.Sprintf("notifier: skipping invalid recipient %q: %v", r, err), err)
			continue
		}
		recipients = append(recipients, *addr)
	}

	baseURL := conf.Server.PublicBaseURL
	if baseURL == "" && conf.Server.Host != "" {
		baseURL = "http://" + conf.Server.Host + conf.Server.Address
	}
	return &Notifier{
		hub:        hub,
		jobs:       jobs,
		mailer:     mailer,
		recipients: recipients,
		baseURL:    strings.TrimRight(baseURL, "/"),
		log:        log,
	}
}

// Start subscribes to every build event and handles them until ctx is done.
// Terminal events still queued at that point are handled before stopping.
// The returned channel is closed once the notifier has stopped.
func (n *Notifier) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if len(n.recipients) == 0 {
		n.log.Info("notifier: no recipients configured, build emails disabled")
		close(done)
		return done
	}

	sub := n.hub.Subscribe(events.Filter{})
	go func() {
		defer close(done)
		defer func() {
			// ctx may be cancelled already, the last jobs still have to be read
			dctx := context.WithoutCancel(ctx)
			for _, e := range sub.Drain() {
				if e.IsTerminal() {
					n.notify(dctx, e)
				}
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub.C():
				if !ok {
					return
				}
				if e.IsTerminal() {
					n.notify(ctx, e)
				}
			}
		}
	}()
	return done
}

func (n *Notifier) notify(ctx context.Context, e events.Event) {
	job, err := n.jobs.Get(ctx, e.JobID)
	if err != nil {
		n.log.Error(fmt.Sprintf("notifier: reading job %s: %v", e.JobID, err), err)
		return
	}

	data := Data{
		JobID:       job.ID,
		Platform:    string(job.Platform),
		AppName:     job.ConfigSnapshot.DisplayName,
		AppKind:     string(job.AppKind),
		Version:     job.ConfigSnapshot.Version,
		BuildNumber: job.ConfigSnapshot.BuildNumber,
		Reason:      e.Reason,
	}
	if data.AppName == "" {
		data.AppName = job.ConfigSnapshot.Name
	}

	msg := &core.EmailMessage{
		To:           n.recipients,
		BaseURL:      n.baseURL,
		TemplateData: data,
	}
	switch e.Type {
	case events.TypeCompleted:
		data.DownloadURL = n.absolute(e.DownloadURL)
		msg.TemplateData = data
		msg.TemplateName = "build_completed"
		msg.Subject = fmt.Sprintf("%s %s build ready", data.AppName, data.Platform)
	case events.TypeFailed:
		msg.TemplateName = "build_failed"
		msg.Subject = fmt.Sprintf("%s %s build failed", data.AppName, data.Platform)
	}
	n.mailer.SendMessages(msg)
}

func (n *Notifier) absolute(url string) string {
	if strings.HasPrefix(url, "/") {
		return n.baseURL + url
	}
	return url
}
