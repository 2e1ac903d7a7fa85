package model

// ChargingStation groups EVSEs sharing the same physical unit.
type ChargingStation struct {
	ID    string  `json:"id"`
	Name  string  `json:"name,omitempty"`
	EVSEs []*EVSE `json:"evses"`
}

// ChargingPool groups charging stations at the same location.
type ChargingPool struct {
	ID       string             `json:"id"`
	Name     string             `json:"name,omitempty"`
	Stations []*ChargingStation `json:"stations"`
}

// AllEVSEs returns every EVSE of the pool in station order.
func (p *ChargingPool) AllEVSEs() []*EVSE {
	if p == nil {
		return nil
	}
	var res []*EVSE
	for _, s := range p.Stations {
		if s == nil {
			continue
		}
		res = append(res, s.EVSEs...)
	}
	return res
}
