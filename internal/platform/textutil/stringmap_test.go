package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStringMap(t *testing.T) {
	t.Run("trims and drops blank keys", func(t *testing.T) {
		got := NormalizeStringMap(map[string]string{
			" orderNumber ": " ORD-2024-000001 ",
			"note":          " ",
			" ":             "ignored",
		}, 0)
		assert.Equal(t, map[string]string{"orderNumber": "ORD-2024-000001", "note": ""}, got)
	})

	t.Run("cuts long values by rune", func(t *testing.T) {
		got := NormalizeStringMap(map[string]string{"city": "Bengaluru"}, 4)
		assert.Equal(t, "Beng", got["city"])

		got = NormalizeStringMap(map[string]string{"name": "ಬೆಂಗಳೂರು"}, 2)
		assert.Equal(t, 2, len([]rune(got["name"])))
	})

	t.Run("nil when nothing survives", func(t *testing.T) {
		assert.Nil(t, NormalizeStringMap(nil, 0))
		assert.Nil(t, NormalizeStringMap(map[string]string{"": "x"}, 0))
	})
}
