package smp

type action int

const (
	actNone action = iota
	actProcLinkUp
	actSendSecReq
	actProcSecReq
	actProcSecGrant
	actProcIOResponse
	actProcDiscard
	actSendAppCallback
	actSendPairReq
	actSendPairRsp
	actProcPairCmd
	actDecideAssociationModel
	actGenerateConfirm
	actProcSlaveKey
	actSendConfirm
	actProcConfirm
	actSendRand
	actProcRand
	actGenerateCompare
	actProcCompare
	actGenerateSTK
	actStartEncryption
	actSendLTKReply
	actCheckAuthReq
	actKeyDistribute
	actSendKeyInfo
	actProcEncInfo
	actProcMasterID
	actProcIDInfo
	actProcIDAddr
	actProcSigningInfo
	actProcPairFail
	actSendPairFail
	actPairingComplete
	actPairTerminate
	actProcReleaseDelay
	actProcReleaseDelayTimeout
)

type actionDesc struct {
	desc    string
	handler func(p *pairing, ev event)
}

// dispatcher is filled in init, the handlers post events that lead back to it.
var dispatcher map[action]actionDesc

func init() {
	dispatcher = map[action]actionDesc{
		actProcLinkUp:              {"proc link up", (*pairing).procLinkUp},
		actSendSecReq:              {"send security req", (*pairing).sendSecReq},
		actProcSecReq:              {"proc security req", (*pairing).procSecReq},
		actProcSecGrant:            {"proc security grant", (*pairing).procSecGrant},
		actProcIOResponse:          {"proc io response", (*pairing).procIOResponse},
		actProcDiscard:             {"proc discard", (*pairing).procDiscard},
		actSendAppCallback:         {"send app callback", (*pairing).sendAppCallback},
		actSendPairReq:             {"send pairing req", (*pairing).sendPairReq},
		actSendPairRsp:             {"send pairing rsp", (*pairing).sendPairRsp},
		actProcPairCmd:             {"proc pairing cmd", (*pairing).procPairCmd},
		actDecideAssociationModel:  {"decide association model", (*pairing).decideAssociationModel},
		actGenerateConfirm:         {"generate confirm", (*pairing).generateConfirm},
		actProcSlaveKey:            {"proc slave key", (*pairing).procSlaveKey},
		actSendConfirm:             {"send confirm", (*pairing).sendConfirm},
		actProcConfirm:             {"proc confirm", (*pairing).procConfirm},
		actSendRand:                {"send rand", (*pairing).sendRand},
		actProcRand:                {"proc rand", (*pairing).procRand},
		actGenerateCompare:         {"generate compare", (*pairing).generateCompare},
		actProcCompare:             {"proc compare", (*pairing).procCompare},
		actGenerateSTK:             {"generate stk", (*pairing).generateSTK},
		actStartEncryption:         {"start encryption", (*pairing).startEncryption},
		actSendLTKReply:            {"send ltk reply", (*pairing).sendLTKReply},
		actCheckAuthReq:            {"check auth req", (*pairing).checkAuthReq},
		actKeyDistribute:           {"key distribute", (*pairing).keyDistribute},
		actSendKeyInfo:             {"send key info", (*pairing).sendKeyInfo},
		actProcEncInfo:             {"proc enc info", (*pairing).procEncInfo},
		actProcMasterID:            {"proc master id", (*pairing).procMasterID},
		actProcIDInfo:              {"proc id info", (*pairing).procIDInfo},
		actProcIDAddr:              {"proc id addr", (*pairing).procIDAddr},
		actProcSigningInfo:         {"proc signing info", (*pairing).procSigningInfo},
		actProcPairFail:            {"proc pairing failed", (*pairing).procPairFail},
		actSendPairFail:            {"send pairing failed", (*pairing).sendPairFail},
		actPairingComplete:         {"pairing complete", (*pairing).pairingComplete},
		actPairTerminate:           {"pair terminate", (*pairing).pairTerminate},
		actProcReleaseDelay:        {"proc release delay", (*pairing).procReleaseDelay},
		actProcReleaseDelayTimeout: {"proc release delay timeout", (*pairing).procReleaseDelayTimeout},
	}
}

func (a action) String() string {
	if d, ok := dispatcher[a]; ok {
		return d.desc
	}
	return "none"
}

// row is one transition: up to two actions, then next state. The next
// state is entered before the actions run.
type row struct {
	event   eventCode
	actions [2]action
	next    State
}

func do(a ...action) [2]action {
	var out [2]action
	copy(out[:], a)
	return out
}

type transitionSource int

const (
	sourceNone transitionSource = iota
	sourcePerState
	sourceAllStates
)

type entry struct {
	source transitionSource
	row    row
}

var masterTable = map[State][]row{
	StateIdle: {
		{evtLinkConnected, do(actProcLinkUp, actSendAppCallback), StateWaitAppResponse},
		{evtSecurityRequest, do(actProcSecReq, actSendAppCallback), StateWaitAppResponse},
		{evtReleaseDelay, do(actProcReleaseDelay), StateReleaseDelay},
	},
	StateWaitAppResponse: {
		{evtSecurityGrant, do(actProcSecGrant, actSendAppCallback), StateWaitAppResponse},
		{evtIOCapResponse, do(actProcIOResponse, actSendPairReq), StatePairRequestResponse},
		{evtKeyReady, do(actGenerateConfirm), StateWaitConfirm},
		{evtEncryptionRequest, do(actStartEncryption), StateEncryptionPending},
		{evtDiscardSecurityRequest, do(actProcDiscard), StateIdle},
	},
	StatePairRequestResponse: {
		{evtPairingResponse, do(actProcPairCmd, actDecideAssociationModel), StatePairRequestResponse},
		{evtTKRequest, do(actSendAppCallback), StateWaitAppResponse},
		{evtKeyReady, do(actGenerateConfirm), StateWaitConfirm},
	},
	StateWaitConfirm: {
		{evtKeyReady, do(actSendConfirm), StateConfirm},
	},
	StateConfirm: {
		{evtConfirm, do(actProcConfirm, actSendRand), StateRand},
	},
	StateRand: {
		{evtRandom, do(actProcRand, actGenerateCompare), StateRand},
		{evtKeyReady, do(actProcCompare), StateRand},
		{evtEncryptionRequest, do(actGenerateSTK), StateEncryptionPending},
	},
	StateEncryptionPending: {
		{evtKeyReady, do(actStartEncryption), StateEncryptionPending},
		{evtEncrypted, do(actCheckAuthReq), StateEncryptionPending},
		{evtBondRequest, do(actKeyDistribute), StateBondPending},
	},
	StateBondPending:  bondPendingRows,
	StateReleaseDelay: releaseDelayRows,
}

var slaveTable = map[State][]row{
	StateIdle: {
		{evtLinkConnected, do(actProcLinkUp, actSendSecReq), StateSecurityRequestPending},
		{evtPairingRequest, do(actProcPairCmd, actSendAppCallback), StateWaitAppResponse},
		{evtReleaseDelay, do(actProcReleaseDelay), StateReleaseDelay},
	},
	StateSecurityRequestPending: {
		{evtPairingRequest, do(actProcPairCmd, actSendAppCallback), StateWaitAppResponse},
		{evtEncrypted, do(actCheckAuthReq), StateEncryptionPending},
	},
	StateWaitAppResponse: {
		{evtSecurityGrant, do(actProcSecGrant, actSendAppCallback), StateWaitAppResponse},
		{evtIOCapResponse, do(actProcIOResponse, actSendPairRsp), StatePairRequestResponse},
		{evtKeyReady, do(actProcSlaveKey), StateWaitAppResponse},
		{evtConfirm, do(actProcConfirm), StateWaitAppResponse},
	},
	StatePairRequestResponse: {
		{evtConfirm, do(actProcConfirm), StatePairRequestResponse},
		{evtTKRequest, do(actSendAppCallback), StateWaitAppResponse},
		{evtKeyReady, do(actProcSlaveKey), StatePairRequestResponse},
	},
	StateWaitConfirm: {
		{evtConfirm, do(actProcConfirm, actSendConfirm), StateConfirm},
	},
	StateConfirm: {
		{evtRandom, do(actProcRand, actGenerateCompare), StateRand},
	},
	StateRand: {
		{evtKeyReady, do(actProcCompare), StateRand},
		{evtEncryptionRequest, do(actGenerateSTK), StateEncryptionPending},
	},
	StateEncryptionPending: {
		{evtEncryptionRequest, do(actGenerateSTK), StateEncryptionPending},
		{evtKeyReady, do(actSendLTKReply), StateEncryptionPending},
		{evtEncrypted, do(actCheckAuthReq), StateEncryptionPending},
		{evtBondRequest, do(actKeyDistribute), StateBondPending},
	},
	StateBondPending:  bondPendingRows,
	StateReleaseDelay: releaseDelayRows,
}

var bondPendingRows = []row{
	{evtEncryptionInfo, do(actProcEncInfo), StateBondPending},
	{evtMasterID, do(actProcMasterID), StateBondPending},
	{evtIdentityInfo, do(actProcIDInfo), StateBondPending},
	{evtIDAddrInfo, do(actProcIDAddr), StateBondPending},
	{evtSigningInfo, do(actProcSigningInfo), StateBondPending},
	{evtKeyReady, do(actSendKeyInfo), StateBondPending},
}

var releaseDelayRows = []row{
	{evtReleaseDelay, do(actProcReleaseDelay), StateReleaseDelay},
	{evtReleaseDelayTimeout, do(actProcReleaseDelayTimeout), StateIdle},
}

// rows valid in every state of both roles
var allStatesTable = []row{
	{evtPairingFailed, do(actProcPairFail, actPairingComplete), StateReleaseDelay},
	{evtAuthComplete, do(actSendPairFail, actPairingComplete), StateReleaseDelay},
	{evtLinkDisconnected, do(actPairTerminate), StateIdle},
}

var entries [2][numEvents][numStates]entry

func init() {
	for role, table := range map[Role]map[State][]row{RoleMaster: masterTable, RoleSlave: slaveTable} {
		for state, rows := range table {
			for _, r := range rows {
				entries[role][r.event][state] = entry{sourcePerState, r}
			}
		}
		for state := State(0); state < numStates; state++ {
			for _, r := range allStatesTable {
				entries[role][r.event][state] = entry{sourceAllStates, r}
			}
		}
	}
}

func lookup(role Role, ev eventCode, state State) entry {
	if role > RoleSlave || ev < 0 || ev >= numEvents || state < 0 || state >= numStates {
		return entry{}
	}
	return entries[role][ev][state]
}
