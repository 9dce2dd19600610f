// Package domain holds the CRM lead lifecycle model: entities, closed
// enumerations, SLA policy and the pure rules shared by routing, timers,
// escalation and reassignment.
package domain

import "fmt"

// AssignmentMethod records how a lead reached its current owner.
type AssignmentMethod string

const (
	MethodNone              AssignmentMethod = ""
	MethodRoundRobin        AssignmentMethod = "round_robin"
	MethodRuleMatch         AssignmentMethod = "rule_match"
	MethodAdminReassignment AssignmentMethod = "admin_reassignment"
	MethodBroadcastClaim    AssignmentMethod = "broadcast_claim"
)

// Valid reports whether m is a known method (including none).
func (m AssignmentMethod) Valid() bool {
	switch m {
	case MethodNone, MethodRoundRobin, MethodRuleMatch, MethodAdminReassignment, MethodBroadcastClaim:
		return true
	}
	return false
}

// ReassignReason selects the timer policy applied by a reassignment.
type ReassignReason string

const (
	ReasonUnclaimed ReassignReason = "unclaimed"
	ReasonNoContact ReassignReason = "no_contact"
	ReasonManual    ReassignReason = "manual"
)

// ParseReassignReason converts raw input into a ReassignReason.
func ParseReassignReason(raw string) (ReassignReason, error) {
	switch r := ReassignReason(raw); r {
	case ReasonUnclaimed, ReasonNoContact, ReasonManual:
		return r, nil
	}
	return "", fmt.Errorf("unknown reassignment reason %q", raw)
}

// StartsContactTimer reports whether the new owner gets a fresh contact window.
func (r ReassignReason) StartsContactTimer() bool {
	return r == ReasonUnclaimed || r == ReasonNoContact
}

// Label is the human-readable sentence used in activity notes and emails.
func (r ReassignReason) Label() string {
	switch r {
	case ReasonUnclaimed:
		return "Lead was not claimed within the claim window"
	case ReasonNoContact:
		return "Assigned agent did not contact the lead within the contact window"
	case ReasonManual:
		return "Manually reassigned by an administrator"
	}
	return string(r)
}

// AlarmLevel is the escalation ladder position of an unclaimed lead.
type AlarmLevel int

const (
	AlarmNone  AlarmLevel = 0
	AlarmFinal AlarmLevel = 4
)

// Valid reports whether the level lies on the ladder.
func (l AlarmLevel) Valid() bool { return l >= AlarmNone && l <= AlarmFinal }

// Next returns the following rung and false when l is already final.
func (l AlarmLevel) Next() (AlarmLevel, bool) {
	if l >= AlarmFinal {
		return l, false
	}
	return l + 1, true
}

// IsFinal reports whether l is the last rung before admin escalation.
func (l AlarmLevel) IsFinal() bool { return l == AlarmFinal }

// LadderLevels lists the rungs in ascending order.
func LadderLevels() []AlarmLevel { return []AlarmLevel{1, 2, 3, 4} }

// RoundRobinMode selects how Tier-2 routing uses a language pool.
type RoundRobinMode string

const (
	// ModeBroadcast offers the lead to the whole pool, first claim wins.
	ModeBroadcast RoundRobinMode = "broadcast"
	// ModeRotate assigns the agent under the rotation cursor directly.
	ModeRotate RoundRobinMode = "rotate"
)

// ParseRoundRobinMode accepts an empty value as broadcast.
func ParseRoundRobinMode(raw string) (RoundRobinMode, error) {
	switch m := RoundRobinMode(raw); m {
	case "":
		return ModeBroadcast, nil
	case ModeBroadcast, ModeRotate:
		return m, nil
	}
	return "", fmt.Errorf("unknown round-robin mode %q", raw)
}

// AgentRole distinguishes pool agents from administrators.
type AgentRole string

const (
	RoleAgent AgentRole = "agent"
	RoleAdmin AgentRole = "admin"
)

// ClaimStatus is the outcome of a claim attempt. Losing a race is not an error.
type ClaimStatus string

const (
	ClaimWon            ClaimStatus = "claimed"
	ClaimAlreadyClaimed ClaimStatus = "already_claimed"
	ClaimAlreadyYours   ClaimStatus = "already_yours"
)

// LeadState is the lifecycle position derived from a lead's flags.
type LeadState string

const (
	StateUnassigned       LeadState = "unassigned"
	StateBroadcastPending LeadState = "broadcast_pending"
	StateClaimBreached    LeadState = "claim_breached"
	StateClaimed          LeadState = "claimed"
	StateContactBreached  LeadState = "contact_breached"
	StateContacted        LeadState = "contacted"
)

// BreachKind names the SLA window that was missed.
type BreachKind string

const (
	BreachClaim   BreachKind = "claim"
	BreachContact BreachKind = "contact"
)
