package domain

import "strconv"

// AgentID identifies a market participant.
type AgentID uint64

// CompanyID identifies a listed company.
type CompanyID uint64

func (a AgentID) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

func (c CompanyID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// CompositeKey packs an (agent, company) pair into a single 128-bit map key.
// The agent occupies the high 64 bits and the company the low 64 bits.
type CompositeKey struct {
	hi uint64
	lo uint64
}

// Combine packs agent and company into a CompositeKey.
func Combine(agent AgentID, company CompanyID) CompositeKey {
	return CompositeKey{hi: uint64(agent), lo: uint64(company)}
}

// Agent returns the high 64 bits of the key.
func (k CompositeKey) Agent() AgentID {
	return AgentID(k.hi)
}

// Company returns the low 64 bits of the key.
func (k CompositeKey) Company() CompanyID {
	return CompanyID(k.lo)
}

// Split returns both halves of the key.
func (k CompositeKey) Split() (AgentID, CompanyID) {
	return k.Agent(), k.Company()
}

func (k CompositeKey) String() string {
	return k.Agent().String() + ":" + k.Company().String()
}
