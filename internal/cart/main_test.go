package cart_test

import (
	"testing"

	"go.uber.org/goleak"
)

// Каждый стор держит горутину записи; тесты обязаны закрывать сторы.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
