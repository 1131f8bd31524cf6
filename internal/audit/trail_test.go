package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryValidateRequiresIdentity(t *testing.T) {
	require.Error(t, Entry{Action: "transfer.recorded"}.Validate())
	require.NoError(t, Entry{Action: "transfer.recorded", Entity: "cash_transfers", EntityID: "t-1"}.Validate())
}

func TestApprovalValidate(t *testing.T) {
	base := Approval{Module: "dividend", RefID: "r-1", ActorID: 7, Action: ApprovalSubmit}
	require.NoError(t, base.Validate())

	missingActor := base
	missingActor.ActorID = 0
	require.ErrorContains(t, missingActor.Validate(), "actor")

	missingRef := base
	missingRef.RefID = ""
	require.ErrorContains(t, missingRef.Validate(), "ref id")
}
