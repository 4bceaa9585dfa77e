package internal

import (
	"github.com/lychee-technology/viewplane"
)

// visibility.go
// Per-field, per-platform show/hide and add-permission decisions. These are
// pure functions of the authored platform bags and the client context.
//
// The Show/ShowAddButton semantics are deliberately asymmetric to the
// AllowAllNodes/AllowAddOnAllNodes semantics and must not be "fixed":
//   - a hide is only suppressed by Show present AND true; Show present and
//     false does not re-show.
//   - a first-node requirement is only suppressed by AllowAllNodes present
//     AND false.
// Every branch of this table is covered in visibility_test.go.

// IsVisible reports whether a field with the given platform bags is shown
// to the client at all.
func IsVisible(bags map[viewplane.Platform]viewplane.PropertyBag, cc viewplane.ClientContext) bool {
	return passesBagRules(bags, cc,
		viewplane.BagHide, viewplane.BagShow,
		viewplane.BagRequireFirstNode, viewplane.BagAllowAllNodes)
}

// CanAdd reports whether the client may see the add-row affordance,
// using the symmetric add-button key set.
func CanAdd(bags map[viewplane.Platform]viewplane.PropertyBag, cc viewplane.ClientContext) bool {
	return passesBagRules(bags, cc,
		viewplane.BagHideAddButton, viewplane.BagShowAddButton,
		viewplane.BagRequireFirstNodeForAdd, viewplane.BagAllowAddOnAllNodes)
}

// passesBagRules applies the two-rule truth table shared by visibility and
// add-permission. When no "any" bag exists, both rules read the
// platform-specific bag instead.
func passesBagRules(bags map[viewplane.Platform]viewplane.PropertyBag, cc viewplane.ClientContext,
	hideKey, showKey, firstNodeKey, allNodesKey string) bool {

	anyBag, hasAny := bags[viewplane.PlatformAny]
	platBag := bags[cc.Platform]

	base := anyBag
	if !hasAny {
		base = platBag
	}

	if base.IsTrue(hideKey) {
		// Only an explicit, true Show on the client's platform suppresses
		// the hide.
		if !platBag.IsTrue(showKey) {
			return false
		}
	}

	if base.IsTrue(firstNodeKey) && !cc.IsFirstNode {
		// Only AllowAllNodes present and false suppresses the first-node
		// requirement.
		v, present := platBag.Bool(allNodesKey)
		if !(present && !v) {
			return false
		}
	}

	return true
}

// HasFieldAccess applies the field-level access predicate: role mask,
// mobile exclusion, and the first-node requirement (satisfied by a trusted
// user).
func HasFieldAccess(ac viewplane.AccessChecker, fld *viewplane.FieldDefinition, cc viewplane.ClientContext) bool {
	if fld.AccessMask != 0 && !ac.HasUserAccess(cc.UserID, fld.AccessMask) {
		return false
	}
	if fld.ExcludeOnMobile && cc.IsMobile {
		return false
	}
	if fld.RequireFirstNode && !cc.IsFirstNode && !cc.IsUserTrusted {
		return false
	}
	return true
}

// PanelVisible applies the dashboard tile flag bits to the client context.
// A trusted user satisfies both the cloud-trust and first-node bits.
func PanelVisible(flags int, cc viewplane.ClientContext) bool {
	if flags&viewplane.PanelFlagNoMobile != 0 && cc.IsMobile {
		return false
	}
	if flags&viewplane.PanelFlagCloudTrust != 0 && cc.IsCloud && !cc.IsUserTrusted {
		return false
	}
	if flags&viewplane.PanelFlagFirstNodeOnly != 0 && !cc.IsFirstNode && !cc.IsUserTrusted {
		return false
	}
	return true
}
