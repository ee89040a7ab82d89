package api

import (
	"math"
	"time"

	"fee-lottery/internal/cycle"
	"fee-lottery/internal/domain"
	"fee-lottery/internal/orchestrator"
	"fee-lottery/internal/vrf"
)

// TimeInfo is the cycle timing block attached to every response.
type TimeInfo struct {
	ServerTime           string `json:"serverTime"`
	SecondsUntilNext     int64  `json:"secondsUntilNext"`
	NextDistributionTime string `json:"nextDistributionTime"`
	LastDistributionTime string `json:"lastDistributionTime"`
	CurrentCycle         int64  `json:"currentCycle"`
}

func timeInfoAt(clock cycle.Clock, now time.Time) TimeInfo {
	cyc := clock.At(now)
	return TimeInfo{
		ServerTime:           now.UTC().Format(time.RFC3339Nano),
		SecondsUntilNext:     int64(math.Ceil(cyc.Remaining.Seconds())),
		NextDistributionTime: cyc.End.Format(time.RFC3339Nano),
		LastDistributionTime: cyc.Start.Format(time.RFC3339Nano),
		CurrentCycle:         cyc.ID,
	}
}

// WinnerView is the JSON projection of one audit record.
type WinnerView struct {
	CycleID          int64    `json:"cycle_id"`
	Status           string   `json:"status"`
	Wallet           *string  `json:"wallet"`
	Amount           float64  `json:"amount"`
	Signature        *string  `json:"signature"`
	VRFSeed          *string  `json:"vrf_seed,omitempty"`
	VRFTx            *string  `json:"vrf_tx,omitempty"`
	VRFRandomValue   *float64 `json:"vrf_random_value,omitempty"`
	VRFError         *string  `json:"vrf_error,omitempty"`
	RandomnessSource string   `json:"randomness_source,omitempty"`
	JackpotAddress   *string  `json:"jackpot_address,omitempty"`
	JackpotAmount    *float64 `json:"jackpot_amount,omitempty"`
	JackpotSignature *string  `json:"jackpot_signature,omitempty"`
	CreatedAt        int64    `json:"created_at"`
}

func winnerView(r *domain.WinnerRecord) *WinnerView {
	if r == nil {
		return nil
	}
	v := &WinnerView{
		CycleID:          r.CycleID,
		Status:           string(r.Status),
		Wallet:           r.Wallet,
		Amount:           r.AmountSOL,
		Signature:        r.Signature,
		VRFSeed:          r.VRFSeed,
		VRFTx:            r.VRFTx,
		VRFRandomValue:   r.VRFRandomValue,
		VRFError:         r.VRFError,
		JackpotAddress:   r.JackpotAddress,
		JackpotAmount:    r.JackpotAmountSOL,
		JackpotSignature: r.JackpotSignature,
		CreatedAt:        r.CreatedAt,
	}
	if r.VRFSeed != nil || r.VRFError != nil {
		v.RandomnessSource = vrf.SourceName
	}
	return v
}

func winnerViews(records []*domain.WinnerRecord) []*WinnerView {
	views := make([]*WinnerView, 0, len(records))
	for _, r := range records {
		views = append(views, winnerView(r))
	}
	return views
}

// JackpotData describes the secondary allocation of a distribution.
type JackpotData struct {
	Address   string  `json:"address"`
	Amount    float64 `json:"amount"`
	Signature string  `json:"signature"`
}

// VRFData describes the randomness provenance of a distribution.
type VRFData struct {
	Seed             string  `json:"seed"`
	VRFTx            string  `json:"vrfTx"`
	RandomValue      float64 `json:"randomValue"`
	RandomnessSource string  `json:"randomnessSource"`
}

// TriggerResponse is the /api/random response body.
type TriggerResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	CycleID          int64        `json:"cycleId"`
	ClaimResult      string       `json:"claimResult,omitempty"`
	Recipient        *string      `json:"recipient"`
	BalanceBefore    float64      `json:"balanceBefore"`
	BalanceAfter     float64      `json:"balanceAfter"`
	ClaimedFromFees  float64      `json:"claimedFromFees"`
	ForwardedLamport uint64       `json:"forwardedLamports"`
	ForwardedSOL     float64      `json:"forwardedSOL"`
	TxSignature      *string      `json:"txSignature"`
	Jackpot          *JackpotData `json:"jackpot"`
	VRFData          *VRFData     `json:"vrfData"`
	VRFError         string       `json:"vrfError,omitempty"`

	ExistingDistribution *WinnerView   `json:"existingDistribution,omitempty"`
	Winner               *WinnerView   `json:"winner,omitempty"`
	Winners              []*WinnerView `json:"winners"`

	TimeInfo
}

// StatsResponse is the /api/stats response body.
type StatsResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Winners []*WinnerView `json:"winners"`
	TimeInfo
}

// triggerResponse renders one orchestrator outcome.
func triggerResponse(outcome *orchestrator.Outcome, winners []*domain.WinnerRecord, info TimeInfo) *TriggerResponse {
	resp := &TriggerResponse{
		CycleID:  outcome.Cycle.ID,
		Winners:  winnerViews(winners),
		TimeInfo: info,
	}

	switch outcome.Status {
	case orchestrator.StatusAlreadyProcessed:
		resp.Success = false
		resp.Error = "distribution already completed for this cycle"
		resp.ExistingDistribution = winnerView(outcome.AlreadyProcessed.Record)

	case orchestrator.StatusNoFunds:
		o := outcome.NoFunds
		resp.Success = true
		resp.Message = "no meaningful fees to distribute"
		fillClaim(resp, o.Claim)
		resp.Winner = winnerView(o.Record)

	case orchestrator.StatusRandomnessFailed:
		o := outcome.RandomnessFailed
		resp.Success = false
		resp.Error = "randomness failed - distribution cancelled for this cycle"
		resp.VRFError = o.Err.Error()
		resp.Message = "fees collected but not distributed; funds stay for the next cycle"
		fillClaim(resp, o.Claim)
		resp.Winner = winnerView(o.Record)

	case orchestrator.StatusDistributed:
		o := outcome.Distributed
		resp.Success = true
		fillClaim(resp, o.Claim)
		resp.Recipient = &o.Selection.Winner.Address
		resp.ForwardedLamport = o.Receipt.WinnerAmount
		resp.ForwardedSOL = float64(o.Receipt.WinnerAmount) / domain.LamportsPerSOL
		resp.TxSignature = &o.Receipt.Signature
		resp.VRFData = &VRFData{
			Seed:             o.Selection.Randomness.SeedBase58(),
			VRFTx:            o.Selection.Randomness.Signature,
			RandomValue:      o.Selection.Randomness.Scalar(),
			RandomnessSource: vrf.SourceName,
		}
		if o.Record.JackpotAddress != nil {
			resp.Jackpot = &JackpotData{
				Address:   *o.Record.JackpotAddress,
				Amount:    *o.Record.JackpotAmountSOL,
				Signature: *o.Record.JackpotSignature,
			}
		}
		resp.Winner = winnerView(o.Record)
	}

	return resp
}

func fillClaim(resp *TriggerResponse, claim orchestrator.ClaimReport) {
	resp.ClaimResult = claim.Signature
	resp.BalanceBefore = float64(claim.BalanceBefore) / domain.LamportsPerSOL
	resp.BalanceAfter = float64(claim.BalanceAfter) / domain.LamportsPerSOL
	resp.ClaimedFromFees = float64(claim.Claimed) / domain.LamportsPerSOL
}
