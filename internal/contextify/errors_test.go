package contextify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

func TestReferenceAndSyntaxErrors(t *testing.T) {
	sb, obj := newSandbox(t, nil)

	refCtor, ok := mustRun(t, sb, "ReferenceError").(*Function)
	require.True(t, ok)
	synCtor, ok := mustRun(t, sb, "SyntaxError").(*Function)
	require.True(t, ok)

	tests := []struct {
		name   string
		source string
		kind   Kind
		ctor   *Function
	}{
		{"undefined identifier", "doh", KindReference, refCtor},
		{"undefined on right side", "x = y", KindReference, refCtor},
		{"malformed source", "function ( { (( }{);", KindSyntax, synCtor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sb.Run(tt.source)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))

			var se *ScriptError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.kind.String(), se.Name)
			require.NotNil(t, se.Thrown)

			require.NoError(t, obj.Set("caught", se.Thrown))
			require.NoError(t, obj.Set("ctor", tt.ctor))
			assert.Equal(t, true, mustRun(t, sb, "caught instanceof ctor"))
		})
	}
	assert.False(t, obj.HasOwn("x"))
}

func TestTypeError(t *testing.T) {
	sb, _ := newSandbox(t, map[string]any{"n": 1})

	_, err := sb.Run("n()")
	assert.Equal(t, KindType, KindOf(err))
	_, err = sb.Run("new Array(-1)")
	assert.Equal(t, KindRange, KindOf(err))
}

func TestUserThrownIdentity(t *testing.T) {
	payload := hostobj.FromMap(map[string]any{"code": 7})
	sb, obj := newSandbox(t, nil)
	require.NoError(t, obj.Set("payload", payload))

	_, err := sb.Run("throw payload")
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindThrown, se.Kind)
	assert.Same(t, payload, se.Thrown)

	_, err = sb.Run("err = {code: 1}; throw err")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindThrown, se.Kind)
	assert.Same(t, obj.MustGet("err"), se.Thrown)

	_, err = sb.Run("throw 'plain'")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "plain", se.Thrown)
	assert.Equal(t, "plain", se.Error())
}

var errBoom = errors.New("boom")

func TestHostGetterErrorIdentity(t *testing.T) {
	obj := hostobj.New()
	require.NoError(t, obj.Define("bad", hostobj.Property{
		Getter:       func(*hostobj.Object) (any, error) { return nil, errBoom },
		Configurable: true,
	}))
	sb, err := New(obj)
	require.NoError(t, err)

	_, err = sb.Run("bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, KindHost, KindOf(err))

	v := mustRun(t, sb, "try { bad; 'missed' } catch (e) { e.message }")
	assert.Equal(t, "boom", v)
}

func TestScriptAccessorErrorIdentity(t *testing.T) {
	sb, obj := newSandbox(t, nil)

	mustRun(t, sb, `marker = {};
		Object.defineProperty(this, 'bad', {get: function () { throw marker }, configurable: true})`)

	assert.Equal(t, true, mustRun(t, sb, "try { bad } catch (e) { same = (e === marker) }"))

	_, err := obj.Get("bad")
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Same(t, obj.MustGet("marker"), se.Thrown)

	_, err = sb.Run("bad")
	require.ErrorAs(t, err, &se)
	assert.Same(t, obj.MustGet("marker"), se.Thrown)
}

func TestHostPanicBecomesError(t *testing.T) {
	sb, obj := newSandbox(t, nil)
	require.NoError(t, obj.Set("explode", Func(func(Call) (any, error) {
		panic("kaboom")
	})))

	_, err := sb.Run("explode()")
	require.Error(t, err)
	assert.Equal(t, KindHost, KindOf(err))
	assert.Contains(t, err.Error(), "kaboom")
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindSyntax:          "SyntaxError",
		KindReference:       "ReferenceError",
		KindType:            "TypeError",
		KindRange:           "RangeError",
		KindThrown:          "UserThrown",
		KindHost:            "HostError",
		KindUseAfterDispose: "UseAfterDispose",
		KindEngineFatal:     "EngineFatal",
		KindUnknown:         "Unknown",
	}
	for kind, want := range tests {
		assert.Equal(t, want, kind.String())
	}
	assert.Equal(t, KindUnknown, KindOf(errors.New("other")))
}

func TestRecursionIsBoundedByDefault(t *testing.T) {
	sb, _ := newSandbox(t, nil)

	_, err := sb.Run("function r() { r() } r()")
	require.Error(t, err)
	assert.Equal(t, KindEngineFatal, KindOf(err))

	assert.EqualValues(t, 2, mustRun(t, sb, "1 + 1"), "context stays usable")
}

func TestRecursionLimitFromConfig(t *testing.T) {
	ctx, err := NewContext(nil, WithConfig(Config{MaxCallStackSize: 50}))
	require.NoError(t, err)

	v, err := ctx.Run("function depth(n) { return n === 0 ? 0 : 1 + depth(n - 1) } depth(40)")
	require.NoError(t, err)
	assert.EqualValues(t, 40, v)

	_, err = ctx.Run("depth(100)")
	assert.Equal(t, KindEngineFatal, KindOf(err))

	zero, err := NewContext(nil, WithConfig(Config{}))
	require.NoError(t, err)
	_, err = zero.Run("function r() { r() } r()")
	assert.Equal(t, KindEngineFatal, KindOf(err), "zero falls back to the default limit")
}
