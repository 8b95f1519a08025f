package password

import (
	"bytes"
	"testing"

	"github.com/fortdb/mongo-maint-tools/common/testtype"
	"github.com/stretchr/testify/require"
)

const (
	testPwd = "test_pwd"
)

func TestPasswordFromNonTerminal(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	t.Run("plain", func(t *testing.T) {
		pass, err := readPassNonInteractively(bytes.NewReader([]byte(testPwd)))
		require.NoError(t, err)
		require.Equal(t, testPwd, pass)
	})

	t.Run("stops at newline", func(t *testing.T) {
		pass, err := readPassNonInteractively(bytes.NewReader([]byte(testPwd + "\nleftover")))
		require.NoError(t, err)
		require.Equal(t, testPwd, pass)
	})

	t.Run("backspace removes a character", func(t *testing.T) {
		pass, err := readPassNonInteractively(bytes.NewReader([]byte("test_pwdx\x7f\r")))
		require.NoError(t, err)
		require.Equal(t, testPwd, pass)
	})
}
