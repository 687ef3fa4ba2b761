package model

type DispenseStatus string

const (
	DispenseStatusCommitted DispenseStatus = "committed"
	DispenseStatusRejected  DispenseStatus = "rejected"
	DispenseStatusFailed    DispenseStatus = "failed"
)

type DispenseRequest struct {
	RequestId string `json:"request_id"`
	FamilyId  int32  `json:"family_id" validate:"required"`
	MemberId  int32  `json:"member_id" validate:"required"`
	Item      string `json:"item" validate:"required,max=50"`
	Quantity  int32  `json:"quantity" validate:"required,gt=0"`
}

type DispenseOutcome struct {
	RequestId     string         `json:"request_id"`
	Status        DispenseStatus `json:"status"`
	Reason        string         `json:"reason,omitempty"`
	TransactionId int64          `json:"transaction_id,omitempty"`
}

type DispenseResponse struct {
	RequestId     string         `json:"request_id"`
	Status        DispenseStatus `json:"status"`
	TransactionId int64          `json:"transaction_id,omitempty"`
}

type DispenseCompletedEventMessage struct {
	RequestId     string `json:"request_id"`
	TransactionId int64  `json:"transaction_id"`
	FamilyId      int32  `json:"family_id"`
	MemberId      int32  `json:"member_id"`
	Item          string `json:"item"`
	Quantity      int32  `json:"quantity"`
	DispensedAt   string `json:"dispensed_at"`
}

type DispenseFailedEventMessage struct {
	RequestId string `json:"request_id"`
	FamilyId  int32  `json:"family_id"`
	MemberId  int32  `json:"member_id"`
	Item      string `json:"item"`
	Quantity  int32  `json:"quantity"`
	Reason    string `json:"reason"`
	FailedAt  string `json:"failed_at"`
}

type SendEmailEventMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
