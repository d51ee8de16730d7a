package billing

// Plan names stored in subscriptions.plan.
const (
	PlanFree   = "free"
	PlanGrowth = "growth"
	PlanPro    = "pro"
)

// Plan describes a subscription tier. MessageLimit is the number of merchant
// messages included per calendar month; zero means unlimited.
type Plan struct {
	Name          string  `json:"name"`
	MessageLimit  int     `json:"message_limit"`
	PriceUSDMonth float64 `json:"price_usd_month"`
}

var plans = map[string]Plan{
	PlanFree:   {Name: PlanFree, MessageLimit: 50, PriceUSDMonth: 0},
	PlanGrowth: {Name: PlanGrowth, MessageLimit: 1000, PriceUSDMonth: 19},
	PlanPro:    {Name: PlanPro, MessageLimit: 0, PriceUSDMonth: 49},
}

// PlanByName looks up a plan. Unknown names fall back to the free plan so a
// corrupted subscription row degrades to the most restrictive tier.
func PlanByName(name string) Plan {
	if p, ok := plans[name]; ok {
		return p
	}
	return plans[PlanFree]
}

// ValidPlan reports whether name is a known plan.
func ValidPlan(name string) bool {
	_, ok := plans[name]
	return ok
}

// Unlimited reports whether the plan has no message cap.
func (p Plan) Unlimited() bool {
	return p.MessageLimit == 0
}
