package celer

// SystemAccounts - accounts owned by the ledger modules themselves
type SystemAccounts struct {
	Ledger         AccountID `json:"ledger"`
	WalletRegistry AccountID `json:"wallet_registry"`
	Pool           AccountID `json:"pool"`
	PayResolver    AccountID `json:"pay_resolver"`
}

// PeerProfile - per participant state of a channel
type PeerProfile struct {
	Account                AccountID   `json:"account"`
	Deposit                Balance     `json:"deposit"`
	Withdrawal             Balance     `json:"withdrawal"`
	SeqNum                 SeqNum      `json:"seq_num"`
	TransferOut            Balance     `json:"transfer_out"`
	NextPayIDListHash      Hash        `json:"next_pay_id_list_hash"`
	LastPayResolveDeadline BlockNumber `json:"last_pay_resolve_deadline"`
	PendingPayOut          Balance     `json:"pending_pay_out"`
}

// WithdrawIntent - pending unilateral withdraw request of a channel
type WithdrawIntent struct {
	Receiver   AccountID   `json:"receiver"`
	Amount     Balance     `json:"amount"`
	Deadline   BlockNumber `json:"deadline"`
	SeqNumHash Hash        `json:"seq_num_hash"`
}

type Channel struct {
	Status                    ChannelStatus          `json:"status"`
	SettleFinalizedTime       Option[BlockNumber]    `json:"settle_finalized_time"`
	CooperativeWithdrawSeqNum Option[SeqNum]         `json:"cooperative_withdraw_seq_num"`
	BalanceLimitsEnabled      bool                   `json:"balance_limits_enabled"`
	BalanceLimit              Option[Balance]        `json:"balance_limit"`
	WithdrawIntent            Option[WithdrawIntent] `json:"withdraw_intent"`

	// Peers order is the order participants were registered in, every
	// per participant query keeps it.
	Peers []PeerProfile `json:"peers"`
}

type Wallet struct {
	Owners  []AccountID `json:"owners"`
	Balance Balance     `json:"balance"`
}

// Peer is one entry of an ordered per participant mapping.
type Peer[V any] struct {
	Account AccountID
	Value   V
}

// PeerFunds - deposit and withdrawal of one participant
type PeerFunds struct {
	Deposit    Balance
	Withdrawal Balance
}

// MigrationPeer - per participant part of the peers migration info
type MigrationPeer struct {
	Deposit       Balance
	Withdrawal    Balance
	SeqNum        SeqNum
	TransferOut   Balance
	PendingPayOut Balance
}

// PeersOf projects every channel participant through f, keeping the order.
func PeersOf[V any](ch *Channel, f func(p *PeerProfile) V) []Peer[V] {
	res := make([]Peer[V], 0, len(ch.Peers))
	for i := range ch.Peers {
		res = append(res, Peer[V]{
			Account: ch.Peers[i].Account,
			Value:   f(&ch.Peers[i]),
		})
	}
	return res
}
