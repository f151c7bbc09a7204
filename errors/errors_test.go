package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinel(t *testing.T) {
	err := Wrapf(ErrTemplateNotFound, "page %q", "Wikipedia:Database reports/Foo")

	assert.True(t, Is(err, ErrTemplateNotFound))
	assert.False(t, Is(err, ErrProtectedPage))
	assert.Contains(t, err.Error(), "Wikipedia:Database reports/Foo")
}

func TestHintsSurviveWrapping(t *testing.T) {
	err := WithHint(New("SQL Error: ER_PARSE_ERROR"), "test the query on Quarry")
	err = Wrap(err, "run report")

	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "test the query on Quarry", hints[0])
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(NewNotFoundError("page %s", "Foo")))
	assert.True(t, IsNotFoundError(Wrap(ErrNotFound, "lookup")))
	assert.False(t, IsNotFoundError(New("something else not found")))
	assert.False(t, IsNotFoundError(nil))
}

func TestIsInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("missing %s parameter", "page")

	assert.True(t, IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "missing page parameter")
	assert.False(t, IsInvalidRequestError(ErrNotFound))
}

func TestAsCustomError(t *testing.T) {
	original := &codedError{code: "protectedpage"}
	wrapped := Wrap(original, "edit")

	var target *codedError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "protectedpage", target.code)
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithHint(nil, "hint"))
}

type codedError struct {
	code string
}

func (e *codedError) Error() string {
	return e.code
}

func ExampleWithHint() {
	err := New("statement timeout")
	err = WithHint(err, "add LIMIT or narrow the WHERE clause")

	fmt.Println(GetAllHints(err)[0])
	// Output: add LIMIT or narrow the WHERE clause
}
