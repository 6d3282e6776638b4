package packet

func init() {
	registerDecoder(KindTell, decodeTell)
	registerDecoder(KindEmoteTo, decodeTell) // same positional layout
	registerDecoder(KindChannelM, decodeChannelMsg)
	registerDecoder(KindChannelE, decodeChannelMsg)
	registerDecoder(KindChannelT, decodeChannelMsg)
	registerDecoder(KindChannelAdd, decodeChannelAdd)
	registerDecoder(KindChannelRemove, decodeChannelAdd)
	registerDecoder(KindChannelAdmin, decodeChannelAdmin)
	registerDecoder(KindChannelFilter, decodeChannelFilter)
	registerDecoder(KindChannelWho, decodeChannelWho)
	registerDecoder(KindChannelListen, decodeChannelListen)
	registerDecoder(KindChanlistReply, decodeChanlistReply)
	registerDecoder(KindWhoReq, decodeWhoReq)
	registerDecoder(KindWhoReply, decodeWhoReply)
	registerDecoder(KindFingerReq, decodeFingerReq)
	registerDecoder(KindFingerReply, decodeFingerReply)
	registerDecoder(KindLocateReq, decodeLocateReq)
	registerDecoder(KindLocateReply, decodeLocateReply)
	registerDecoder(KindStartupReq3, decodeStartupReq3)
	registerDecoder(KindStartupReply, decodeStartupReply)
	registerDecoder(KindShutdown, decodeShutdown)
	registerDecoder(KindMudlist, decodeMudlist)
	registerDecoder(KindError, decodeError)
	registerDecoder(KindAuthMudReq, decodeAuthMud)
	registerDecoder(KindAuthMudReply, decodeAuthMud)
	for _, k := range []Kind{KindOOBReq, KindOOBBegin, KindMail, KindMailAck, KindNews, KindNewsReadReq, KindFile} {
		k := k
		registerDecoder(k, func(seq []any) (Packet, error) { return decodeGeneric(k, seq) })
	}
}

// --- tell / emoteto ---

// TellPacket carries a private message (tell) or a remotely-visible emote
// (emoteto) between two users. Wire layout is bit-exact: 8 positions
// (header + visname + message).
type TellPacket struct {
	Header
	Visname string
	Message string
}

func (p *TellPacket) ToSequence() []any {
	return append(headerFields(p.Header), p.Visname, p.Message)
}
func (p *TellPacket) Validate() error {
	if err := validateHeader(p.Header); err != nil {
		return err
	}
	if p.OriginatorUser == "" {
		return &ValidationError{Kind: p.Kind, Reason: "requires non-empty originator_user"}
	}
	if p.TargetUser == "" {
		return &ValidationError{Kind: p.Kind, Reason: "requires non-empty target_user"}
	}
	if p.Message == "" {
		return &ValidationError{Kind: p.Kind, Reason: "requires non-empty message"}
	}
	return nil
}

func decodeTell(seq []any) (Packet, error) {
	h, err := decodeHeader(Kind(asString(seq[0])), seq, 8)
	if err != nil {
		return nil, err
	}
	visname := asString(seq[6])
	if visname == "" {
		visname = h.OriginatorUser
	}
	return &TellPacket{Header: h, Visname: visname, Message: asString(seq[7])}, nil
}

// --- channel-m / channel-e / channel-t ---

// ChannelMsgPacket covers channel-m (message), channel-e (emote) and
// channel-t (targeted emote).
type ChannelMsgPacket struct {
	Header
	Channel string
	Visname string
	Message string
}

func (p *ChannelMsgPacket) ToSequence() []any {
	return append(headerFields(p.Header), p.Channel, p.Visname, p.Message)
}
func (p *ChannelMsgPacket) Validate() error {
	if err := validateHeader(p.Header); err != nil {
		return err
	}
	if p.Channel == "" {
		return &ValidationError{Kind: p.Kind, Reason: "requires non-empty channel"}
	}
	if p.Message == "" {
		return &ValidationError{Kind: p.Kind, Reason: "requires non-empty message"}
	}
	return nil
}

func decodeChannelMsg(seq []any) (Packet, error) {
	kind := Kind(asString(seq[0]))
	h, err := decodeHeader(kind, seq, 9)
	if err != nil {
		return nil, err
	}
	visname := asString(seq[7])
	if visname == "" {
		visname = h.OriginatorUser
	}
	return &ChannelMsgPacket{Header: h, Channel: asString(seq[6]), Visname: visname, Message: asString(seq[8])}, nil
}

// --- channel-add / channel-remove ---

// ChannelAddPacket covers subscription add/remove control messages.
type ChannelAddPacket struct {
	Header
	Channel string
}

func (p *ChannelAddPacket) ToSequence() []any { return append(headerFields(p.Header), p.Channel) }
func (p *ChannelAddPacket) Validate() error {
	if err := validateHeader(p.Header); err != nil {
		return err
	}
	if p.Channel == "" {
		return &ValidationError{Kind: p.Kind, Reason: "requires non-empty channel"}
	}
	return nil
}
func decodeChannelAdd(seq []any) (Packet, error) {
	kind := Kind(asString(seq[0]))
	h, err := decodeHeader(kind, seq, 7)
	if err != nil {
		return nil, err
	}
	return &ChannelAddPacket{Header: h, Channel: asString(seq[6])}, nil
}

// ChannelAdminPacket carries a channel administration command (ban, owner
// change, etc.) as a generic op/args pair.
type ChannelAdminPacket struct {
	Header
	Channel string
	Op      string
	Args    []any
}

func (p *ChannelAdminPacket) ToSequence() []any {
	return append(headerFields(p.Header), p.Channel, p.Op, p.Args)
}
func (p *ChannelAdminPacket) Validate() error {
	if err := validateHeader(p.Header); err != nil {
		return err
	}
	if p.Channel == "" {
		return &ValidationError{Kind: p.Kind, Reason: "requires non-empty channel"}
	}
	return nil
}
func decodeChannelAdmin(seq []any) (Packet, error) {
	h, err := decodeHeader(KindChannelAdmin, seq, 8)
	if err != nil {
		return nil, err
	}
	return &ChannelAdminPacket{Header: h, Channel: asString(seq[6]), Op: asString(seq[7]), Args: asSeq(sliceOrNil(seq, 8))}, nil
}

func sliceOrNil(seq []any, idx int) any {
	if idx < len(seq) {
		return seq[idx]
	}
	return nil
}

// ChannelFilterPacket carries a content filter rule for a channel.
type ChannelFilterPacket struct {
	Header
	Channel string
	Filter  map[string]any
}

func (p *ChannelFilterPacket) ToSequence() []any {
	var f any = p.Filter
	return append(headerFields(p.Header), p.Channel, f)
}
func (p *ChannelFilterPacket) Validate() error {
	if err := validateHeader(p.Header); err != nil {
		return err
	}
	if p.Channel == "" {
		return &ValidationError{Kind: p.Kind, Reason: "requires non-empty channel"}
	}
	return nil
}
func decodeChannelFilter(seq []any) (Packet, error) {
	h, err := decodeHeader(KindChannelFilter, seq, 8)
	if err != nil {
		return nil, err
	}
	return &ChannelFilterPacket{Header: h, Channel: asString(seq[6]), Filter: asMap(seq[7])}, nil
}

// ChannelWhoPacket requests (or replies with) the member list of a channel.
type ChannelWhoPacket struct {
	Header
	Channel string
	Users   []any
}

func (p *ChannelWhoPacket) ToSequence() []any {
	var u any = p.Users
	return append(headerFields(p.Header), p.Channel, u)
}
func (p *ChannelWhoPacket) Validate() error {
	if err := validateHeader(p.Header); err != nil {
		return err
	}
	if p.Channel == "" {
		return &ValidationError{Kind: p.Kind, Reason: "requires non-empty channel"}
	}
	return nil
}
func decodeChannelWho(seq []any) (Packet, error) {
	h, err := decodeHeader(KindChannelWho, seq, 7)
	if err != nil {
		return nil, err
	}
	p := &ChannelWhoPacket{Header: h, Channel: asString(seq[6])}
	if len(seq) >= 8 {
		p.Users = asSeq(seq[7])
	}
	return p, nil
}

// ChannelListenPacket toggles whether the originator listens to a channel
// without being a full member. Per spec.md §9 Open Question, Listen
// accepts both string "1"/"0" and literal int 1/0 on decode, and always
// emits the string form.
type ChannelListenPacket struct {
	Header
	Channel string
	Listen  bool
}

func (p *ChannelListenPacket) ToSequence() []any {
	flag := "0"
	if p.Listen {
		flag = "1"
	}
	return append(headerFields(p.Header), p.Channel, flag)
}
func (p *ChannelListenPacket) Validate() error {
	if err := validateHeader(p.Header); err != nil {
		return err
	}
	if p.Channel == "" {
		return &ValidationError{Kind: p.Kind, Reason: "requires non-empty channel"}
	}
	return nil
}
func decodeChannelListen(seq []any) (Packet, error) {
	h, err := decodeHeader(KindChannelListen, seq, 8)
	if err != nil {
		return nil, err
	}
	flag := seq[7]
	listen := false
	switch v := flag.(type) {
	case string:
		listen = v == "1" || v == "true"
	case int32:
		listen = v == 1
	case int:
		listen = v == 1
	}
	return &ChannelListenPacket{Header: h, Channel: asString(seq[6]), Listen: listen}, nil
}

// ChanlistReplyPacket carries the full channel list from the router.
type ChanlistReplyPacket struct {
	Header
	ChanlistID int32
	Chanlist   map[string]any
}

func (p *ChanlistReplyPacket) ToSequence() []any {
	var c any = p.Chanlist
	return append(headerFields(p.Header), p.ChanlistID, c)
}
func (p *ChanlistReplyPacket) Validate() error { return validateHeader(p.Header) }
func decodeChanlistReply(seq []any) (Packet, error) {
	h, err := decodeHeader(KindChanlistReply, seq, 8)
	if err != nil {
		return nil, err
	}
	return &ChanlistReplyPacket{Header: h, ChanlistID: asInt32(seq[6]), Chanlist: asMap(seq[7])}, nil
}

// --- who ---

// WhoReqPacket requests a mud's online user list with optional filters.
type WhoReqPacket struct {
	Header
	Filter map[string]any
}

func (p *WhoReqPacket) ToSequence() []any {
	if len(p.Filter) == 0 {
		return headerFields(p.Header)
	}
	var f any = p.Filter
	return append(headerFields(p.Header), f)
}
func (p *WhoReqPacket) Validate() error { return validateHeader(p.Header) }
func decodeWhoReq(seq []any) (Packet, error) {
	h, err := decodeHeader(KindWhoReq, seq, 6)
	if err != nil {
		return nil, err
	}
	p := &WhoReqPacket{Header: h}
	if len(seq) >= 7 {
		p.Filter = asMap(seq[6])
	}
	return p, nil
}

// WhoUserEntry is one row of a who-reply, per §4.5: name, idle_seconds,
// level, and a typed extension map for forward-compatible fields.
type WhoUserEntry struct {
	Name        string
	IdleSeconds int32
	Level       int32
	Extra       map[string]string
}

// WhoReplyPacket answers a who-req with the matching online users.
type WhoReplyPacket struct {
	Header
	WhoData []WhoUserEntry
}

func (p *WhoReplyPacket) ToSequence() []any {
	rows := make([]any, 0, len(p.WhoData))
	for _, e := range p.WhoData {
		extra := make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			extra[k] = v
		}
		rows = append(rows, map[string]any{
			"name":         e.Name,
			"idle_seconds": e.IdleSeconds,
			"level":        e.Level,
			"extra":        extra,
		})
	}
	var r any = rows
	return append(headerFields(p.Header), r)
}
func (p *WhoReplyPacket) Validate() error {
	if err := validateHeader(p.Header); err != nil {
		return err
	}
	if p.WhoData == nil {
		return &ValidationError{Kind: p.Kind, Reason: "requires who_data"}
	}
	return nil
}
func decodeWhoReply(seq []any) (Packet, error) {
	h, err := decodeHeader(KindWhoReply, seq, 7)
	if err != nil {
		return nil, err
	}
	rows := asSeq(seq[6])
	data := make([]WhoUserEntry, 0, len(rows))
	for _, r := range rows {
		m := asMap(r)
		extra := map[string]string{}
		for k, v := range asMap(m["extra"]) {
			extra[k] = asString(v)
		}
		data = append(data, WhoUserEntry{
			Name:        asString(m["name"]),
			IdleSeconds: asInt32(m["idle_seconds"]),
			Level:       asInt32(m["level"]),
			Extra:       extra,
		})
	}
	return &WhoReplyPacket{Header: h, WhoData: data}, nil
}

// --- finger ---

// FingerReqPacket requests detailed info on a named user.
type FingerReqPacket struct {
	Header
}

func (p *FingerReqPacket) ToSequence() []any { return headerFields(p.Header) }
func (p *FingerReqPacket) Validate() error   { return validateHeader(p.Header) }
func decodeFingerReq(seq []any) (Packet, error) {
	h, err := decodeHeader(KindFingerReq, seq, 6)
	if err != nil {
		return nil, err
	}
	return &FingerReqPacket{Header: h}, nil
}

// FingerReplyPacket answers a finger-req. IPAddress is elided by the
// handler (not the wire model) when the hide_ip policy is set.
type FingerReplyPacket struct {
	Header
	RealName    string
	EmailAddr   string
	ExtraInfo   string
	LoggedIn    bool
	LastLogin   string
	IPAddress   string
	Level       int32
	Extra       map[string]string
}

func (p *FingerReplyPacket) ToSequence() []any {
	loggedIn := int32(0)
	if p.LoggedIn {
		loggedIn = 1
	}
	extra := make(map[string]any, len(p.Extra))
	for k, v := range p.Extra {
		extra[k] = v
	}
	return append(headerFields(p.Header), p.RealName, p.EmailAddr, p.ExtraInfo, loggedIn, p.LastLogin, p.IPAddress, p.Level, any(extra))
}
func (p *FingerReplyPacket) Validate() error { return validateHeader(p.Header) }
func decodeFingerReply(seq []any) (Packet, error) {
	h, err := decodeHeader(KindFingerReply, seq, 13)
	if err != nil {
		return nil, err
	}
	extra := map[string]string{}
	if len(seq) >= 14 {
		for k, v := range asMap(seq[13]) {
			extra[k] = asString(v)
		}
	}
	return &FingerReplyPacket{
		Header:    h,
		RealName:  asString(seq[6]),
		EmailAddr: asString(seq[7]),
		ExtraInfo: asString(seq[8]),
		LoggedIn:  asInt32(seq[9]) != 0,
		LastLogin: asString(seq[10]),
		IPAddress: asString(seq[11]),
		Level:     asInt32(seq[12]),
		Extra:     extra,
	}, nil
}

// --- locate ---

// LocateReqPacket is a broadcast request asking all muds whether a named
// user is online locally.
type LocateReqPacket struct {
	Header
}

func (p *LocateReqPacket) ToSequence() []any { return headerFields(p.Header) }
func (p *LocateReqPacket) Validate() error   { return validateHeader(p.Header) }
func decodeLocateReq(seq []any) (Packet, error) {
	h, err := decodeHeader(KindLocateReq, seq, 6)
	if err != nil {
		return nil, err
	}
	return &LocateReqPacket{Header: h}, nil
}

// LocateReplyPacket answers a locate-req when the target user is online
// locally.
type LocateReplyPacket struct {
	Header
	Located bool
	Extra   map[string]string
}

func (p *LocateReplyPacket) ToSequence() []any {
	found := int32(0)
	if p.Located {
		found = 1
	}
	extra := make(map[string]any, len(p.Extra))
	for k, v := range p.Extra {
		extra[k] = v
	}
	return append(headerFields(p.Header), found, any(extra))
}
func (p *LocateReplyPacket) Validate() error { return validateHeader(p.Header) }
func decodeLocateReply(seq []any) (Packet, error) {
	h, err := decodeHeader(KindLocateReply, seq, 7)
	if err != nil {
		return nil, err
	}
	extra := map[string]string{}
	if len(seq) >= 8 {
		for k, v := range asMap(seq[7]) {
			extra[k] = asString(v)
		}
	}
	return &LocateReplyPacket{Header: h, Located: asInt32(seq[6]) != 0, Extra: extra}, nil
}

// --- startup / router lifecycle ---

// StartupReq3Packet is the handshake packet sent on connect. Per spec.md
// §9, the 20-field form (with OldMudlistID/OldChanlistID/OtherData) is
// authoritative; an 18-field decode is rejected.
type StartupReq3Packet struct {
	Header
	Password      int32
	MudPort       int32
	TCPPort       int32
	UDPPort       int32
	Mudlib        string
	BaseMudlib    string
	Driver        string
	MudType       string
	OpenStatus    string
	AdminEmail    string
	Services      map[string]any
	OtherData     map[string]any
	OldMudlistID  int32
	OldChanlistID int32
}

func (p *StartupReq3Packet) ToSequence() []any {
	return append(headerFields(p.Header),
		p.Password, p.MudPort, p.TCPPort, p.UDPPort,
		p.Mudlib, p.BaseMudlib, p.Driver, p.MudType, p.OpenStatus, p.AdminEmail,
		any(p.Services), any(p.OtherData), p.OldMudlistID, p.OldChanlistID)
}
func (p *StartupReq3Packet) Validate() error {
	if err := validateHeader(p.Header); err != nil {
		return err
	}
	if p.OriginatorMud == "" {
		return &ValidationError{Kind: p.Kind, Reason: "requires non-empty originator_mud"}
	}
	return nil
}
func decodeStartupReq3(seq []any) (Packet, error) {
	const fieldCount = 20
	if len(seq) == 18 {
		return nil, &ValidationError{Kind: KindStartupReq3, Reason: "18-field startup-req-3 form is rejected; 20-field form required"}
	}
	h, err := decodeHeader(KindStartupReq3, seq, fieldCount)
	if err != nil {
		return nil, err
	}
	return &StartupReq3Packet{
		Header:        h,
		Password:      asInt32(seq[6]),
		MudPort:       asInt32(seq[7]),
		TCPPort:       asInt32(seq[8]),
		UDPPort:       asInt32(seq[9]),
		Mudlib:        asString(seq[10]),
		BaseMudlib:    asString(seq[11]),
		Driver:        asString(seq[12]),
		MudType:       asString(seq[13]),
		OpenStatus:    asString(seq[14]),
		AdminEmail:    asString(seq[15]),
		Services:      asMap(seq[16]),
		OtherData:     asMap(seq[17]),
		OldMudlistID:  asInt32(seq[18]),
		OldChanlistID: asInt32(seq[19]),
	}, nil
}

// StartupReplyPacket confirms the router accepted the handshake.
type StartupReplyPacket struct {
	Header
	Info map[string]any
}

func (p *StartupReplyPacket) ToSequence() []any { return append(headerFields(p.Header), any(p.Info)) }
func (p *StartupReplyPacket) Validate() error    { return validateHeader(p.Header) }
func decodeStartupReply(seq []any) (Packet, error) {
	h, err := decodeHeader(KindStartupReply, seq, 6)
	if err != nil {
		return nil, err
	}
	p := &StartupReplyPacket{Header: h}
	if len(seq) >= 7 {
		p.Info = asMap(seq[6])
	}
	return p, nil
}

// ShutdownPacket announces the router (or a mud) is going offline.
type ShutdownPacket struct {
	Header
}

func (p *ShutdownPacket) ToSequence() []any { return headerFields(p.Header) }
func (p *ShutdownPacket) Validate() error   { return validateHeader(p.Header) }
func decodeShutdown(seq []any) (Packet, error) {
	h, err := decodeHeader(KindShutdown, seq, 6)
	if err != nil {
		return nil, err
	}
	return &ShutdownPacket{Header: h}, nil
}

// MudlistPacket carries the router's incremental mud list update.
type MudlistPacket struct {
	Header
	MudlistID int32
	Mudlist   map[string]any
}

func (p *MudlistPacket) ToSequence() []any {
	return append(headerFields(p.Header), p.MudlistID, any(p.Mudlist))
}
func (p *MudlistPacket) Validate() error { return validateHeader(p.Header) }
func decodeMudlist(seq []any) (Packet, error) {
	h, err := decodeHeader(KindMudlist, seq, 8)
	if err != nil {
		return nil, err
	}
	return &MudlistPacket{Header: h, MudlistID: asInt32(seq[6]), Mudlist: asMap(seq[7])}, nil
}

// ErrorPacket reports a protocol or routing error back to an originator.
type ErrorPacket struct {
	Header
	ErrorCode    string
	ErrorMessage string
	BadPacket    Kind
}

func (p *ErrorPacket) ToSequence() []any {
	return append(headerFields(p.Header), p.ErrorCode, p.ErrorMessage, string(p.BadPacket))
}
func (p *ErrorPacket) Validate() error {
	if err := validateHeader(p.Header); err != nil {
		return err
	}
	if p.ErrorCode == "" {
		return &ValidationError{Kind: p.Kind, Reason: "requires non-empty error_code"}
	}
	return nil
}
func decodeError(seq []any) (Packet, error) {
	h, err := decodeHeader(KindError, seq, 8)
	if err != nil {
		return nil, err
	}
	p := &ErrorPacket{Header: h, ErrorCode: asString(seq[6]), ErrorMessage: asString(seq[7])}
	if len(seq) >= 9 {
		p.BadPacket = Kind(asString(seq[8]))
	}
	return p, nil
}

// --- auth-mud ---

// AuthMudPacket covers both auth-mud-req and auth-mud-reply, which share a
// layout: a challenge/response string payload.
type AuthMudPacket struct {
	Header
	Payload string
}

func (p *AuthMudPacket) ToSequence() []any { return append(headerFields(p.Header), p.Payload) }
func (p *AuthMudPacket) Validate() error   { return validateHeader(p.Header) }
func decodeAuthMud(seq []any) (Packet, error) {
	kind := Kind(asString(seq[0]))
	h, err := decodeHeader(kind, seq, 7)
	if err != nil {
		return nil, err
	}
	return &AuthMudPacket{Header: h, Payload: asString(seq[6])}, nil
}

// --- generic / low-traffic kinds (oob-req, oob-begin, mail, mail-ack,
// news, news-read-req, file) ---

// GenericPacket holds kinds whose payload is not modeled with named
// struct fields: each payload position is kept in Fields under the
// per-kind name genericFieldOrder gives it. Values are stored as decoded
// (map[string]any); they are not converted or type-checked.
type GenericPacket struct {
	Header
	Fields map[string]any
}

func (p *GenericPacket) ToSequence() []any {
	seq := headerFields(p.Header)
	for _, k := range genericFieldOrder(p.Kind) {
		seq = append(seq, p.Fields[k])
	}
	return seq
}
func (p *GenericPacket) Validate() error { return validateHeader(p.Header) }

func decodeGeneric(kind Kind, seq []any) (Packet, error) {
	h, err := decodeHeader(kind, seq, 6)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	order := genericFieldOrder(kind)
	for i, name := range order {
		idx := 6 + i
		if idx < len(seq) {
			fields[name] = seq[idx]
		}
	}
	return &GenericPacket{Header: h, Fields: fields}, nil
}

func genericFieldOrder(k Kind) []string {
	switch k {
	case KindOOBReq:
		return []string{"oob_type", "payload"}
	case KindOOBBegin:
		return []string{"oob_id"}
	case KindMail:
		return []string{"from_name", "subject", "message", "date"}
	case KindMailAck:
		return []string{"status"}
	case KindNews:
		return []string{"group", "article", "subject", "message"}
	case KindNewsReadReq:
		return []string{"group", "article"}
	case KindFile:
		return []string{"filename", "contents"}
	default:
		return nil
	}
}
