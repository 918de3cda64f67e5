package common_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	common "github.com/example/transactional-email/internal/adapters/common"
)

type codedError struct{ code int }

func (e *codedError) Error() string { return "coded" }

func TestWrapKeepsInnerErrorReachable(t *testing.T) {
	inner := &codedError{code: 502}

	err := common.WrapTransient(inner)
	assert.ErrorIs(t, err, common.ErrTransient)
	assert.NotErrorIs(t, err, common.ErrPermanent)

	var target *codedError
	assert.ErrorAs(t, err, &target)
	assert.Equal(t, 502, target.code)

	assert.ErrorIs(t, common.WrapPermanent(inner), common.ErrPermanent)
	assert.Equal(t, common.ErrTransient, common.WrapTransient(nil))
	assert.Equal(t, common.ErrPermanent, common.WrapPermanent(nil))
}

func TestOutcomeFromError(t *testing.T) {
	out := common.OutcomeFromError(nil, 0, "")
	assert.Equal(t, common.StatusUnknown, out.Status)

	out = common.OutcomeFromError(common.WrapPermanent(errors.New("Invalid_Key")), 500, "Invalid_Key")
	assert.Equal(t, common.StatusRejectedPermanent, out.Status)
	assert.Equal(t, 500, out.Code)
	assert.Contains(t, out.Reason, "Invalid_Key")
	assert.Equal(t, "Invalid_Key", out.ErrorName)
	assert.Empty(t, out.RejectReason)
	assert.True(t, out.Rejected())

	out = common.OutcomeFromError(errors.New("dial tcp: i/o timeout"), 0, "transport")
	assert.Equal(t, common.StatusRejectedTransient, out.Status)
	assert.Equal(t, "transport", out.ErrorName)
}

func TestTruncateRaw(t *testing.T) {
	assert.Equal(t, "", common.TruncateRaw("abc", 0))
	assert.Equal(t, "abc", common.TruncateRaw("abc", 5))
	assert.Equal(t, "héé", common.TruncateRaw("hééllo", 3))
}
