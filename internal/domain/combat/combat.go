// Package combat resolves battle rounds.
//
// The resolver is stateless apart from its Roller. Damage is computed in
// floating point and rounded to the nearest integer when it is applied.
package combat

import (
	"fmt"
	"math"

	"github.com/okian/tapbattle/internal/domain/model"
)

const (
	critMultiplier   = 1.5
	maxCritChance    = 0.2
	dodgeChance      = 0.4
	dodgeCounter     = 1.8
	failedSpecial    = 1.4
	specialExchange  = 1.3
	defendReduction  = 0.5
	counterFraction  = 0.3
	pierceFraction   = 0.7
	minPierce        = 2
	stalemateDamage  = 1
	pvpMinDamage     = 5
	pvpFirstBonus    = 1.2
	pvpStatBonus     = 1.2
	pvpDefenseWeight = 0.5
)

// Outcome is the result of one round from the user side's perspective.
type Outcome struct {
	DamageToUser     int
	DamageToOpponent int
	UserCritical     bool
	OpponentCritical bool
	UserAction       model.BattleAction
	OpponentAction   model.BattleAction
	// Description is written for the user side.
	Description string
	// MirrorDescription is the same round written for the opponent side.
	// Only PvP rounds carry it.
	MirrorDescription string
	FirstAttacker     model.Side
}

// Resolver computes round outcomes.
type Resolver struct {
	roller Roller
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRoller injects the randomness source.
func WithRoller(r Roller) Option {
	return func(res *Resolver) {
		if r != nil {
			res.roller = r
		}
	}
}

// New returns a Resolver using the process-wide generator unless overridden.
func New(opts ...Option) *Resolver {
	r := &Resolver{roller: DefaultRoller()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BaseDamage is max(1, attacker.power - defender.defense/2).
func BaseDamage(attacker, defender model.ParticipantStats) float64 {
	return math.Max(1, float64(attacker.Power)-float64(defender.Defense)/2)
}

// CritChance is min(0.2, speed/100).
func CritChance(s model.ParticipantStats) float64 {
	return math.Min(maxCritChance, float64(s.Speed)/100)
}

func crit(on bool) float64 {
	if on {
		return critMultiplier
	}
	return 1
}

func critTag(on bool) string {
	if on {
		return " (Critical Hit!)"
	}
	return ""
}

func round(v float64) int {
	if v <= 0 {
		return 0
	}
	return int(math.Round(v))
}

// Resolve applies the action table to one PvE round. Critical hits are
// rolled once per side, user first, before the table is consulted.
func (r *Resolver) Resolve(user, opp model.ParticipantStats, userAction, oppAction model.ActionType) Outcome {
	userBase := BaseDamage(user, opp)
	oppBase := BaseDamage(opp, user)
	userCrit := r.roller.Float64() < CritChance(user)
	oppCrit := r.roller.Float64() < CritChance(opp)
	userFirst := user.Speed >= opp.Speed

	var toUser, toOpp float64
	var desc string
	var userBlocked, oppBlocked bool

	switch userAction {
	case model.ActionAttack:
		switch oppAction {
		case model.ActionAttack:
			toOpp = userBase * crit(userCrit)
			toUser = oppBase * crit(oppCrit)
			mine := fmt.Sprintf("You attack for %d damage%s.", round(toOpp), critTag(userCrit))
			theirs := fmt.Sprintf("Opponent attacks for %d damage%s.", round(toUser), critTag(oppCrit))
			desc = ordered(userFirst, mine, theirs)
		case model.ActionDefend:
			toOpp = math.Max(1, userBase*crit(userCrit)*defendReduction)
			toUser = oppBase * counterFraction
			oppBlocked = true
			desc = fmt.Sprintf("You attack for %d damage%s but opponent defends, reducing damage. Opponent counter-attacks for %d damage.",
				round(toOpp), critTag(userCrit), round(toUser))
		case model.ActionSpecial:
			if r.roller.Float64() < dodgeChance {
				toUser = oppBase * dodgeCounter * crit(oppCrit)
				oppBlocked = true
				desc = fmt.Sprintf("Opponent uses a special move and dodges your attack! They counter with a powerful strike for %d damage%s.",
					round(toUser), critTag(oppCrit))
			} else {
				toOpp = userBase * crit(userCrit)
				toUser = oppBase * failedSpecial * crit(oppCrit)
				desc = fmt.Sprintf("You attack for %d damage%s. Opponent's special move fails but still deals %d damage%s.",
					round(toOpp), critTag(userCrit), round(toUser), critTag(oppCrit))
			}
		}
	case model.ActionDefend:
		switch oppAction {
		case model.ActionAttack:
			toUser = math.Max(1, oppBase*defendReduction) * crit(oppCrit)
			toOpp = userBase * counterFraction
			userBlocked = true
			desc = fmt.Sprintf("You defend against opponent's attack, reducing damage to %d%s. You counter-attack for %d damage.",
				round(toUser), critTag(oppCrit), round(toOpp))
		case model.ActionDefend:
			toUser, toOpp = stalemateDamage, stalemateDamage
			userBlocked, oppBlocked = true, true
			desc = "Both of you defend. Stalemate!"
		case model.ActionSpecial:
			toUser = math.Max(minPierce, oppBase*pierceFraction) * crit(oppCrit)
			desc = fmt.Sprintf("Opponent's special move partially penetrates your defense for %d damage%s.",
				round(toUser), critTag(oppCrit))
		}
	case model.ActionSpecial:
		switch oppAction {
		case model.ActionAttack:
			if r.roller.Float64() < dodgeChance {
				toOpp = userBase * dodgeCounter * crit(userCrit)
				userBlocked = true
				desc = fmt.Sprintf("Your special move allows you to dodge opponent's attack! You counter with a powerful strike for %d damage%s.",
					round(toOpp), critTag(userCrit))
			} else {
				toUser = oppBase * crit(oppCrit)
				toOpp = userBase * failedSpecial * crit(userCrit)
				desc = fmt.Sprintf("Your special move fails. Opponent hits for %d damage%s, but you still deal %d damage%s.",
					round(toUser), critTag(oppCrit), round(toOpp), critTag(userCrit))
			}
		case model.ActionDefend:
			toOpp = math.Max(minPierce, userBase*pierceFraction) * crit(userCrit)
			desc = fmt.Sprintf("Your special move partially penetrates opponent's defense for %d damage%s.",
				round(toOpp), critTag(userCrit))
		case model.ActionSpecial:
			toUser = oppBase * specialExchange * crit(oppCrit)
			toOpp = userBase * specialExchange * crit(userCrit)
			mine := fmt.Sprintf("Your special attack hits for %d damage%s.", round(toOpp), critTag(userCrit))
			theirs := fmt.Sprintf("Opponent's special attack hits for %d damage%s.", round(toUser), critTag(oppCrit))
			desc = ordered(userFirst, mine, theirs)
		}
	}

	out := Outcome{
		DamageToUser:     round(toUser),
		DamageToOpponent: round(toOpp),
		UserCritical:     userCrit,
		OpponentCritical: oppCrit,
		Description:      desc,
	}
	out.UserAction = model.BattleAction{Type: userAction, Damage: out.DamageToOpponent, Blocked: userBlocked, Critical: userCrit}
	out.OpponentAction = model.BattleAction{Type: oppAction, Damage: out.DamageToUser, Blocked: oppBlocked, Critical: oppCrit}
	return out
}

func ordered(userFirst bool, mine, theirs string) string {
	if userFirst {
		return mine + " " + theirs
	}
	return theirs + " " + mine
}

// ResolvePvP computes a head-to-head PvP round where both sides attack.
// The first attacker deals 20% more, and 20% more again when its
// power+defense+speed exceeds the other side's.
func (r *Resolver) ResolvePvP(user, opp model.ParticipantStats, first model.Side) Outcome {
	toOpp := float64(user.Power) - pvpDefenseWeight*float64(opp.Defense)
	toUser := float64(opp.Power) - pvpDefenseWeight*float64(user.Defense)
	if first == model.SideOpponent {
		toUser *= pvpFirstBonus
		if opp.Aggregate() > user.Aggregate() {
			toUser *= pvpStatBonus
		}
	} else {
		first = model.SideUser
		toOpp *= pvpFirstBonus
		if user.Aggregate() > opp.Aggregate() {
			toOpp *= pvpStatBonus
		}
	}
	dmgUser := max(pvpMinDamage, int(math.Round(toUser)))
	dmgOpp := max(pvpMinDamage, int(math.Round(toOpp)))

	out := Outcome{
		DamageToUser:     dmgUser,
		DamageToOpponent: dmgOpp,
		FirstAttacker:    first,
		UserAction:       model.BattleAction{Type: model.ActionAttack, Damage: dmgOpp},
		OpponentAction:   model.BattleAction{Type: model.ActionAttack, Damage: dmgUser},
	}
	out.Description = pvpText(first == model.SideUser, dmgOpp, dmgUser)
	out.MirrorDescription = pvpText(first == model.SideOpponent, dmgUser, dmgOpp)
	return out
}

func pvpText(selfFirst bool, dealt, taken int) string {
	if selfFirst {
		return fmt.Sprintf("You attacked first! You deal %d damage. Opponent counters for %d damage.", dealt, taken)
	}
	return fmt.Sprintf("Opponent attacked first! They deal %d damage. You counter for %d damage.", taken, dealt)
}

// Opponent action weights: attack 0.7, defend 0.2, special 0.1.
var opponentWeights = []struct {
	action model.ActionType
	weight float64
}{
	{model.ActionAttack, 0.7},
	{model.ActionDefend, 0.2},
	{model.ActionSpecial, 0.1},
}

// OpponentAction picks an NPC move by weighted random choice.
func (r *Resolver) OpponentAction() model.ActionType {
	roll := r.roller.Float64()
	cumulative := 0.0
	for _, w := range opponentWeights {
		cumulative += w.weight
		if roll < cumulative {
			return w.action
		}
	}
	return model.ActionAttack
}

// Roll returns a uniform integer in [lo, hi].
func (r *Resolver) Roll(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.roller.IntN(hi-lo+1)
}

// ApplyDamage subtracts dmg from current health, clamping at zero.
func ApplyDamage(s *model.ParticipantStats, dmg int) {
	if dmg < 0 {
		return
	}
	s.CurrentHealth -= dmg
	if s.CurrentHealth < 0 {
		s.CurrentHealth = 0
	}
}
