package utils

import (
	"crypto/md5"
	"strings"

	"github.com/gofrs/uuid"
)

// DeterministicUuid derives a name based uuid from the parts, in order.
func DeterministicUuid(parts ...string) uuid.UUID {
	if len(parts) == 0 {
		parts = append(parts, uuid.Nil.String())
	}
	return uuidHash([]byte(strings.Join(parts, "|")))
}

// IdempotencyKey names one effect of one PayIn, e.g. a notification to one user.
func IdempotencyKey(kind string, ids ...uuid.UUID) uuid.UUID {
	parts := make([]string, 0, len(ids)+1)
	parts = append(parts, kind)
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return DeterministicUuid(parts...)
}

func uuidHash(b []byte) uuid.UUID {
	h := md5.New()

	h.Write(b)
	sum := h.Sum(nil)
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.FromBytesOrNil(sum)
}
