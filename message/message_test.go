package message_test

import (
	"testing"

	"github.com/arielkovacs/msgbus"
	"github.com/arielkovacs/msgbus/header"
	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/arielkovacs/msgbus/internal/testutil"
	"github.com/arielkovacs/msgbus/message"
	"github.com/arielkovacs/msgbus/serializer"
	"github.com/arielkovacs/msgbus/transport"
	"github.com/arielkovacs/msgbus/transport/adapters/memory"
	"github.com/stretchr/testify/suite"
)

type MessageSuite struct {
	testutil.Suite
	reg *message.Registry
	ser serializer.Serializer
	tr  *memory.Memory
}

func (s *MessageSuite) SetupTest() {
	s.Suite.SetupTest()
	s.reg = message.NewRegistry()
	s.ser = serializer.NewJSON()
	s.tr = memory.New(memory.Config{}, transport.BaseOptions{Serializer: s.ser})

	msgbus.Configure(msgbus.Defaults{Transport: s.tr, Serializer: s.ser})
}

func (s *MessageSuite) TearDownTest() {
	msgbus.Reset()
}

func code(err error) string {
	c, _ := apperrors.Code(err)
	return c
}

func (s *MessageSuite) registerOrder() {
	s.reg.Register(&message.Descriptor{
		Class:   "OrderCreated",
		Version: 1,
		From:    "orders-service",
		Properties: []message.PropertySpec{
			{Name: "order_id", Required: true},
			{Name: "amount", Required: true, Validator: message.Predicate(func(v any) bool {
				n, ok := v.(int)
				return ok && n > 0
			})},
			{Name: "currency", Default: "USD"},
		},
	})
}

func (s *MessageSuite) TestNewUnknownClassReturnsError() {
	_, err := message.New(s.reg, "Nope", nil)
	s.Require().Error(err)
	s.Equal(apperrors.CodeUnknownMessageClass, code(err))
}

func (s *MessageSuite) TestNewAppliesPropertyDefaults() {
	s.registerOrder()
	m, err := message.New(s.reg, "OrderCreated", map[string]any{"order_id": "o-1", "amount": 10})
	s.Require().NoError(err)

	v, ok := m.Get("currency")
	s.True(ok)
	s.Equal("USD", v)
}

func (s *MessageSuite) TestValidateRequiresFrom() {
	s.registerOrder()
	m, err := message.New(s.reg, "OrderCreated", map[string]any{"order_id": "o-1", "amount": 10})
	s.Require().NoError(err)

	m.ResetFrom()
	err = m.Validate()
	s.Require().Error(err)
	s.Equal(apperrors.CodeValidation, code(err))
}

func (s *MessageSuite) TestValidateRequiresRequiredProperties() {
	s.registerOrder()
	m, err := message.New(s.reg, "OrderCreated", map[string]any{"amount": 10})
	s.Require().NoError(err)

	err = m.Validate()
	s.Require().Error(err)
	s.Equal(apperrors.CodeValidation, code(err))
}

func (s *MessageSuite) TestValidateRunsPropertyValidator() {
	s.registerOrder()
	m, err := message.New(s.reg, "OrderCreated", map[string]any{"order_id": "o-1", "amount": -5})
	s.Require().NoError(err)

	err = m.Validate()
	s.Require().Error(err)
}

func (s *MessageSuite) TestAddressingOverridesAndReset() {
	s.registerOrder()
	m, err := message.New(s.reg, "OrderCreated", map[string]any{"order_id": "o-1", "amount": 10})
	s.Require().NoError(err)

	s.Equal("orders-service", m.From())
	s.False(m.FromConfigured())

	m.SetFrom("custom-sender")
	s.True(m.FromConfigured())
	s.Equal("custom-sender", m.From())

	m.ResetFrom()
	s.False(m.FromConfigured())
	s.Equal("orders-service", m.From())

	s.True(m.ToMissing())
	m.SetTo("billing-service")
	s.False(m.ToMissing())
	s.Equal("billing-service", m.To())
}

func (s *MessageSuite) TestReplyToDefaultsToFrom() {
	s.registerOrder()
	m, err := message.New(s.reg, "OrderCreated", map[string]any{"order_id": "o-1", "amount": 10})
	s.Require().NoError(err)

	s.Equal(m.From(), m.ReplyTo())

	m.SetReplyTo("support-service")
	s.Equal("support-service", m.ReplyTo())

	m.ResetReplyTo()
	s.Equal(m.From(), m.ReplyTo())
}

func (s *MessageSuite) TestPublishStampsHeaderAndDeliversToTransport() {
	s.registerOrder()
	m, err := message.New(s.reg, "OrderCreated", map[string]any{"order_id": "o-1", "amount": 10})
	s.Require().NoError(err)

	s.Require().NoError(m.Publish(s.Ctx))
	s.Require().NotNil(m.Header())
	s.Equal("orders-service", m.Header().From)
	s.Equal(1, s.tr.MessageCount())

	stored := s.tr.AllMessages()[0]
	s.Equal("OrderCreated", stored.MessageClass)

	env, err := s.ser.Decode(stored.Payload)
	s.Require().NoError(err)
	s.Equal("o-1", env.Payload["order_id"])
}

func (s *MessageSuite) TestPublishFailsValidationWithoutTouchingTransport() {
	s.registerOrder()
	m, err := message.New(s.reg, "OrderCreated", map[string]any{"amount": 10})
	s.Require().NoError(err)

	s.Require().Error(m.Publish(s.Ctx))
	s.Equal(0, s.tr.MessageCount())
}

func (s *MessageSuite) TestPublishWithoutProcessTransportFails() {
	msgbus.Reset()
	s.registerOrder()
	m, err := message.New(s.reg, "OrderCreated", map[string]any{"order_id": "o-1", "amount": 10})
	s.Require().NoError(err)

	err = m.Publish(s.Ctx)
	s.Require().Error(err)
	s.Equal(apperrors.CodeTransportNotConfigured, code(err))
}

func (s *MessageSuite) TestUseTransportOverridesProcessDefault() {
	s.registerOrder()
	other := memory.New(memory.Config{}, transport.BaseOptions{Serializer: s.ser})

	m, err := message.New(s.reg, "OrderCreated", map[string]any{"order_id": "o-1", "amount": 10})
	s.Require().NoError(err)
	m.UseTransport(other)

	s.Require().NoError(m.Publish(s.Ctx))
	s.Equal(0, s.tr.MessageCount())
	s.Equal(1, other.MessageCount())
}

func (s *MessageSuite) TestToHashIncludesResolvedAddressing() {
	s.registerOrder()
	m, err := message.New(s.reg, "OrderCreated", map[string]any{"order_id": "o-1", "amount": 10})
	s.Require().NoError(err)
	m.SetTo("billing-service")

	h := m.ToHash()
	s.Equal("o-1", h["order_id"])
	s.Equal("OrderCreated", h["_class"])
	s.Equal("orders-service", h["_from"])
	s.Equal("billing-service", h["_to"])
}

func (s *MessageSuite) TestPrettyPrintIncludesHeaderWhenRequested() {
	s.registerOrder()
	m, err := message.New(s.reg, "OrderCreated", map[string]any{"order_id": "o-1", "amount": 10})
	s.Require().NoError(err)
	s.Require().NoError(m.Publish(s.Ctx))

	out := m.PrettyPrint(true)
	s.Contains(out, "OrderCreated{")
	s.Contains(out, "order_id: o-1")
	s.Contains(out, "uuid:")
}

func (s *MessageSuite) TestFromEnvelopeRejectsVersionMismatch() {
	s.registerOrder()

	h := header.New("OrderCreated", "orders-service")
	h.Version = 2
	env := &serializer.Envelope{Header: h, Payload: map[string]any{"order_id": "o-1", "amount": 10}}

	_, err := message.FromEnvelope(s.reg, env)
	s.Require().Error(err)
	s.Equal(apperrors.CodeValidation, code(err))
}

func (s *MessageSuite) TestFromEnvelopeReconstructsAddressing() {
	s.registerOrder()

	h := header.New("OrderCreated", "orders-service")
	h.To = "billing-service"
	env := &serializer.Envelope{Header: h, Payload: map[string]any{"order_id": "o-1", "amount": 10}}

	m, err := message.FromEnvelope(s.reg, env)
	s.Require().NoError(err)
	s.Equal("orders-service", m.From())
	s.Equal("billing-service", m.To())
	s.True(m.FromConfigured())
}

func TestMessageSuite(t *testing.T) {
	suite.Run(t, new(MessageSuite))
}
