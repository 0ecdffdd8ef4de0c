package core

// Action names checked against the purchase-order lifecycle table (spec
// §4.5.6: "allowed actions per state are a fixed table").
const (
	ActionEdit     = "edit"
	ActionCancel   = "cancel"
	ActionReceive  = "receive"
	ActionConvert  = "convert"
)

type poLifecycleKey struct {
	state          PurchaseOrderState
	convertedToGRN bool
}

// poAllowedActions is the fixed table named in spec §4.5.6: the cross
// product of workflow state and conversion flag gates which actions are
// legal, mirroring the teacher's repeated `if status != X` guards
// (order_service.go) generalized into one lookup.
var poAllowedActions = map[poLifecycleKey]map[string]bool{
	{POStateOrderPlaced, false}:    {ActionEdit: true, ActionCancel: true, ActionReceive: true},
	{POStateOrderReceived, false}:  {ActionConvert: true},
	{POStateOrderReceived, true}:   {},
	{POStateOrderCancelled, false}: {},
}

// CheckPOAction reports a LifecycleError if action is not permitted for a
// purchase order currently in (state, convertedToGRN).
func CheckPOAction(poID int64, state PurchaseOrderState, convertedToGRN bool, action string) error {
	allowed, ok := poAllowedActions[poLifecycleKey{state, convertedToGRN}]
	if !ok || !allowed[action] {
		return &LifecycleError{
			EntityType: "purchase_order",
			EntityID:   poID,
			Action:     action,
			Reason:     "purchase order in state " + string(state) + " is not eligible for this action",
		}
	}
	return nil
}

// soTransitions is the sales-order state machine drawn literally from spec
// §4.5.6: NEW is the only state with outgoing edges, both of which retire
// the order (DELIVERED, CANCELLED are terminal).
var soTransitions = map[SalesOrderStatus]map[SalesOrderStatus]bool{
	SOStatusNew:       {SOStatusDelivered: true, SOStatusCancelled: true},
	SOStatusDelivered: {},
	SOStatusCancelled: {},
}

// CheckSOTransition reports a LifecycleError for any transition other than
// NEW→DELIVERED or NEW→CANCELLED.
func CheckSOTransition(soID int64, from, to SalesOrderStatus) error {
	if from == to {
		return &LifecycleError{EntityType: "sales_order", EntityID: soID, Action: "transition", Reason: "order is already in state " + string(to)}
	}
	if allowed, ok := soTransitions[from]; !ok || !allowed[to] {
		return &LifecycleError{EntityType: "sales_order", EntityID: soID, Action: "transition", Reason: "cannot move from " + string(from) + " to " + string(to)}
	}
	return nil
}
