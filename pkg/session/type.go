package session

const (
	AllowedMethods = "INVITE,ACK,CANCEL,BYE,INFO,OPTIONS"
	AcceptedBody   = "application/sdp, application/dtmf-relay"
	MaxForwards    = 70
)

type Status string

const (
	New              Status = "New"
	InviteSent       Status = "InviteSent"       /**< After INVITE s sent */
	InviteReceived   Status = "InviteReceived"   /**< After INVITE s received. */
	ReInviteReceived Status = "ReInviteReceived" /**< After re-INVITE s received */
	Provisional      Status = "Provisional"      /**< After response for 1XX. */
	EarlyMedia       Status = "EarlyMedia"       /**< After response 1XX with sdp. */
	WaitingForACK    Status = "WaitingForACK"    /**< After 2xx s sent. */
	Canceled         Status = "Canceled"
	Confirmed        Status = "Confirmed"  /**< After ACK s sent/received. */
	Failure          Status = "Failure"    /**< Session s rejected or canceled. */
	Terminated       Status = "Terminated" /**< Session s terminated. */
)

type Direction string

const (
	Outgoing Direction = "Outgoing"
	Incoming Direction = "Incoming"
)
