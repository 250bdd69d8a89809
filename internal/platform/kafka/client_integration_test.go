//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"certledger/internal/platform/kafka"
	audit "certledger/pkg/platform/audit"
	kafkapub "certledger/pkg/platform/audit/publishers/kafka"
	"certledger/pkg/testutil/containers"
)

const topic = "certificate-revocations-it"

type KafkaSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	producer *kgo.Client
}

func TestKafkaSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	producer, err := kafka.NewProducer(kafka.Config{
		Brokers:  []string{s.redpanda.Broker},
		Topic:    topic,
		ClientID: "certledger-it",
	})
	s.Require().NoError(err)
	s.producer = producer
}

func (s *KafkaSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *KafkaSuite) TestNoBrokersDisablesProducer() {
	client, err := kafka.NewProducer(kafka.Config{Topic: topic})
	s.NoError(err)
	s.Nil(client)
}

func (s *KafkaSuite) TestEnsureTopicIsIdempotent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(kafka.EnsureTopic(ctx, s.producer, topic, 1, 1, nil))
	s.Require().NoError(kafka.EnsureTopic(ctx, s.producer, topic, 1, 1, nil))
}

func (s *KafkaSuite) TestRevocationEventRoundTrip() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	s.Require().NoError(kafka.EnsureTopic(ctx, s.producer, topic, 1, 1, nil))

	pub := kafkapub.New(s.producer, topic)
	s.Require().NoError(pub.Emit(ctx, audit.Event{
		Action:        string(audit.EventCertificateRevoked),
		CertificateID: "55",
		TokenID:       55,
		ActorID:       "0xadmin",
		Reason:        "duplicate issuance",
		TxHash:        "0xfeed",
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var record *kgo.Record
	for record == nil {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out waiting for the revocation event")
		fetches.EachRecord(func(r *kgo.Record) {
			if string(r.Key) == "55" {
				record = r
			}
		})
	}

	var body map[string]any
	s.Require().NoError(json.Unmarshal(record.Value, &body))
	s.Equal("certificate_revoked", body["action"])
	s.Equal("compliance", body["category"])
	s.Equal("0xfeed", body["txHash"])
	s.Equal("duplicate issuance", body["reason"])
	s.Equal("event_type", record.Headers[0].Key)
}
