package adjustment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSign(t *testing.T) {
	require.Equal(t, int64(-7), NormalizeSign(TypeTheft, 7))
	require.Equal(t, int64(-7), NormalizeSign(TypeTheft, -7))
	require.Equal(t, int64(3), NormalizeSign(TypeFound, -3))
	require.Equal(t, int64(3), NormalizeSign(TypeFound, 3))
	require.Equal(t, int64(-5), NormalizeSign(TypeCorrection, -5))
	require.Equal(t, int64(5), NormalizeSign(TypeCorrection, 5))
	require.Equal(t, int64(-2), NormalizeSign(TypeRecount, -2))
}

func TestRuleForUnknownType(t *testing.T) {
	_, err := RuleFor(Type("SHOPLIFTING"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown adjustment type")
}

func TestRequiresApproval(t *testing.T) {
	threshold := decimal.NewFromInt(1000)

	// Theft gates regardless of value.
	require.True(t, RequiresApproval(TypeTheft, decimal.NewFromInt(1), threshold))
	// System-generated types never gate, even above the threshold.
	require.False(t, RequiresApproval(TypeCustomerReturn, decimal.NewFromInt(5000), threshold))
	require.False(t, RequiresApproval(TypeRecount, decimal.NewFromInt(5000), threshold))
	// Destructive types gate below the threshold too.
	require.True(t, RequiresApproval(TypeDamage, decimal.NewFromInt(10), threshold))
	// Non-destructive gains gate only above the threshold.
	require.False(t, RequiresApproval(TypeFound, decimal.NewFromInt(999), threshold))
	require.True(t, RequiresApproval(TypeFound, decimal.NewFromInt(1001), threshold))
	// A zero threshold disables the value gate.
	require.False(t, RequiresApproval(TypeFound, decimal.NewFromInt(1000000), decimal.Zero))
	// Unknown types fail safe.
	require.True(t, RequiresApproval(Type("SHOPLIFTING"), decimal.Zero, threshold))
}

func TestIsShrinkage(t *testing.T) {
	require.True(t, IsShrinkage(TypeTheft))
	require.True(t, IsShrinkage(TypeSample))
	require.False(t, IsShrinkage(TypeFound))
	require.False(t, IsShrinkage(TypeCorrection))
}

func TestIsLegacyTransfer(t *testing.T) {
	require.True(t, IsLegacyTransfer(TypeTransferIn))
	require.True(t, IsLegacyTransfer(TypeTransferOut))
	require.False(t, IsLegacyTransfer(TypeCorrection))
}
