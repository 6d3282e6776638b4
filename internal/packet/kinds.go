package packet

// Kind identifies one of the closed set of I3 packet kinds.
type Kind string

const (
	KindTell           Kind = "tell"
	KindEmoteTo        Kind = "emoteto"
	KindChannelM       Kind = "channel-m"
	KindChannelE       Kind = "channel-e"
	KindChannelT       Kind = "channel-t"
	KindChannelAdd     Kind = "channel-add"
	KindChannelRemove  Kind = "channel-remove"
	KindChannelAdmin   Kind = "channel-admin"
	KindChannelFilter  Kind = "channel-filter"
	KindChannelWho     Kind = "channel-who"
	KindChannelListen  Kind = "channel-listen"
	KindChanlistReply  Kind = "chanlist-reply"
	KindWhoReq         Kind = "who-req"
	KindWhoReply       Kind = "who-reply"
	KindFingerReq      Kind = "finger-req"
	KindFingerReply    Kind = "finger-reply"
	KindLocateReq      Kind = "locate-req"
	KindLocateReply    Kind = "locate-reply"
	KindStartupReq3    Kind = "startup-req-3"
	KindStartupReply   Kind = "startup-reply"
	KindShutdown       Kind = "shutdown"
	KindMudlist        Kind = "mudlist"
	KindError          Kind = "error"
	KindAuthMudReq     Kind = "auth-mud-req"
	KindAuthMudReply   Kind = "auth-mud-reply"
	KindOOBReq         Kind = "oob-req"
	KindOOBBegin       Kind = "oob-begin"
	KindMail           Kind = "mail"
	KindMailAck        Kind = "mail-ack"
	KindNews           Kind = "news"
	KindNewsReadReq    Kind = "news-read-req"
	KindFile           Kind = "file"
)

// replyKind maps a request kind to its paired reply kind, for MakeReply.
var replyKind = map[Kind]Kind{
	KindWhoReq:      KindWhoReply,
	KindFingerReq:   KindFingerReply,
	KindLocateReq:   KindLocateReply,
	KindStartupReq3: KindStartupReply,
	KindAuthMudReq:  KindAuthMudReply,
}

// TTLCeiling is the policy ceiling a fresh outbound packet's TTL starts at.
const TTLCeiling = 200

// Error codes synthesized by the dispatcher (§7, §4.5).
const (
	ErrCodeUnknownDest = "unk-dst"
	ErrCodeUnknownUser = "unk-user"
	ErrCodeNotImpl     = "not-imp"
)
