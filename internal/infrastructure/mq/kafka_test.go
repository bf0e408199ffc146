package mq

import (
	"errors"
	"testing"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/config"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestKafkaPublisherSendMessage(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewKafkaConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"invoice":"INV-01"}` {
			return errors.New("unexpected payload: " + string(val))
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisher(producer)
	if err := p.SendMessage("referral.credited", "INV-01", `{"invoice":"INV-01"}`); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := p.SendMessage("referral.credited", "INV-02", `{}`); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("second send err = %v, want ErrOutOfBrokers", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestInitKafkaDisabled(t *testing.T) {
	p, err := InitKafka(&config.KafkaConfig{Enabled: false})
	if err != nil || p != nil {
		t.Fatalf("InitKafka disabled = (%v, %v), want (nil, nil)", p, err)
	}
	if _, err := InitKafka(&config.KafkaConfig{Enabled: true}); err == nil {
		t.Fatal("expected error without brokers")
	}
}
