package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := Transport("connect", errors.New("dial refused"))
	assert.Equal(t, "TRANSPORT: connect: dial refused", err.Error())

	bare := &Error{Kind: KindResource, Op: "start broadcast"}
	assert.Equal(t, "RESOURCE: start broadcast", bare.Error())
}

func TestUnwrapPreservesSentinel(t *testing.T) {
	sentinel := errors.New("stream not found")
	err := Negotiation("handle offer", sentinel)

	assert.ErrorIs(t, err, sentinel)
}

func TestKindChecksSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("session: %w", Transport("send", errors.New("broken pipe")))

	assert.True(t, IsTransport(err))
	assert.False(t, IsNegotiation(err))
	assert.False(t, IsResource(err))
	assert.True(t, IsKind(err, KindTransport))
	assert.False(t, IsKind(err, KindProtocol))
}

func TestKindChecksOnPlainErrors(t *testing.T) {
	assert.False(t, IsTransport(errors.New("plain")))
	assert.False(t, IsKind(nil, KindTransport))
}
