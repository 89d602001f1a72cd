package captions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/eventbus"
)

const (
	JobsSubject = "captions.jobs"
	JobsQueue   = "captions"
)

// Job is one queued transcription request for a chunk of meeting audio.
type Job struct {
	MeetingID      string `json:"meetingId"`
	SpeakerID      string `json:"speakerId"`
	SpeakerName    string `json:"speakerName"`
	Language       string `json:"language"`
	TargetLanguage string `json:"targetLanguage"`
	Translate      bool   `json:"translate"`
	MimeType       string `json:"mimeType"`
	Audio          []byte `json:"audio"`
}

type captionEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type captionPayload struct {
	Segment
	ConnectionID string `json:"connectionId"`
	UserName     string `json:"userName"`
	Language     string `json:"language"`
}

// Daemon consumes queued transcription jobs, runs them through the pipeline,
// persists the captions and fans them out to the speaker's meeting channel.
type Daemon struct {
	nc  *nats.Conn
	sub *nats.Subscription

	service *Service
	store   *Store
	bus     eventbus.Publisher

	errors chan error
	stop   chan struct{}
}

func NewDaemon(natsAddr string, service *Service, store *Store, bus eventbus.Publisher) (*Daemon, error) {
	nc, err := nats.Connect(natsAddr, nats.NoEcho())
	if err != nil {
		return nil, err
	}

	daemon := &Daemon{
		nc:      nc,
		service: service,
		store:   store,
		bus:     bus,
		errors:  make(chan error),
		stop:    make(chan struct{}),
	}

	return daemon, nil
}

func (d *Daemon) Run() error {
	log.Info().Msg("start captions daemon")

	var err error
	d.sub, err = d.nc.QueueSubscribe(JobsSubject, JobsQueue, func(msg *nats.Msg) {
		if err := d.handleJob(msg); err != nil {
			d.errors <- err
		}
	})
	if err != nil {
		return err
	}

	for {
		select {
		case err := <-d.errors:
			log.Error().Err(err).Msg("")
		case <-d.stop:
			return d.Stop()
		}
	}
}

func (d *Daemon) Stop() error {
	log.Info().Msg("stop captions daemon")

	if err := d.sub.Unsubscribe(); err != nil {
		log.Error().Err(err).Msg("unsubscribe from jobs subject")
	}

	return d.nc.Drain()
}

func (d *Daemon) Shutdown() {
	close(d.stop)
}

func (d *Daemon) handleJob(msg *nats.Msg) error {
	job := &Job{}

	r := bytes.NewReader(msg.Data)
	if err := json.NewDecoder(r).Decode(job); err != nil {
		return fmt.Errorf("captions job decode error: %v", err)
	}

	log.Debug().
		Str("meetingId", job.MeetingID).
		Str("speakerId", job.SpeakerID).
		Int("audioBytes", len(job.Audio)).
		Msg("received transcription job")

	ctx := context.Background()

	result, err := d.service.Transcribe(ctx, job.Audio, Options{
		Language:       job.Language,
		Translate:      job.Translate,
		TargetLanguage: job.TargetLanguage,
		MimeType:       job.MimeType,
	})
	if err != nil {
		return fmt.Errorf("transcription job failed for meeting %s: %w", job.MeetingID, err)
	}

	if d.store != nil {
		if err := d.store.Append(ctx, job.MeetingID, job.SpeakerID, job.SpeakerName, result.Language, result.Captions); err != nil {
			log.Error().Err(err).Str("meetingId", job.MeetingID).Msg("persist captions")
		}
	}

	for _, segment := range result.Captions {
		payload, err := json.Marshal(captionEvent{
			Event: "new-caption",
			Data: captionPayload{
				Segment:      segment,
				ConnectionID: job.SpeakerID,
				UserName:     job.SpeakerName,
				Language:     result.Language,
			},
		})
		if err != nil {
			return err
		}
		if err := d.bus.Publish(job.MeetingID, payload); err != nil {
			return fmt.Errorf("publish caption to meeting %s: %w", job.MeetingID, err)
		}
	}

	return nil
}
