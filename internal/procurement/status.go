package procurement

import "github.com/odyssey-erp/odyssey-ledger/internal/workflow"

// RequisitionStatus is the lifecycle state of a purchase requisition.
type RequisitionStatus string

const (
	StatusDraft                RequisitionStatus = "draft"
	StatusSubmittedForApproval RequisitionStatus = "submitted_for_approval"
	StatusApproved             RequisitionStatus = "approved"
	StatusRejected             RequisitionStatus = "rejected"
	StatusUnderNegotiation     RequisitionStatus = "under_negotiation"
	StatusClosed               RequisitionStatus = "closed"
	StatusCanceled             RequisitionStatus = "canceled"
)

// RequisitionTransitions is the single source of labels, colors and legal
// successors for requisition statuses.
var RequisitionTransitions = workflow.MustTable(
	workflow.Entry[RequisitionStatus]{State: StatusDraft, Spec: workflow.Spec[RequisitionStatus]{
		Label: "Draft", Color: "gray", Icon: "pencil",
		Next: []RequisitionStatus{StatusSubmittedForApproval, StatusCanceled},
	}},
	workflow.Entry[RequisitionStatus]{State: StatusSubmittedForApproval, Spec: workflow.Spec[RequisitionStatus]{
		Label: "Submitted for Approval", Color: "yellow", Icon: "clock",
		Next: []RequisitionStatus{StatusCanceled, StatusApproved, StatusRejected},
	}},
	workflow.Entry[RequisitionStatus]{State: StatusApproved, Spec: workflow.Spec[RequisitionStatus]{
		Label: "Approved", Color: "green", Icon: "check",
		Next: []RequisitionStatus{StatusUnderNegotiation, StatusCanceled},
	}},
	workflow.Entry[RequisitionStatus]{State: StatusRejected, Spec: workflow.Spec[RequisitionStatus]{
		Label: "Rejected", Color: "red", Icon: "x",
		Next: []RequisitionStatus{StatusDraft},
	}},
	workflow.Entry[RequisitionStatus]{State: StatusUnderNegotiation, Spec: workflow.Spec[RequisitionStatus]{
		Label: "Under Negotiation", Color: "blue", Icon: "chat",
		Next: []RequisitionStatus{StatusCanceled},
	}},
	workflow.Entry[RequisitionStatus]{State: StatusClosed, Spec: workflow.Spec[RequisitionStatus]{
		Label: "Closed", Color: "slate", Icon: "lock",
	}},
	workflow.Entry[RequisitionStatus]{State: StatusCanceled, Spec: workflow.Spec[RequisitionStatus]{
		Label: "Canceled", Color: "red", Icon: "ban",
	}},
)

// approverRole is required in the requisition's context to approve or reject.
const approverRole = "approver"

// requiresApprover reports whether entering to needs an approver.
func requiresApprover(to RequisitionStatus) bool {
	return to == StatusApproved || to == StatusRejected
}
