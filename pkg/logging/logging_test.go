package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewWithOptionsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(&buf, logrus.DebugLevel, true)
	log.WithField("package", "/Game/Foo").Debug("decoded")

	assert.Contains(t, buf.String(), `"package":"/Game/Foo"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("nonsense"))
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("dropped")
	assert.Equal(t, logrus.PanicLevel, log.GetLevel())
}
