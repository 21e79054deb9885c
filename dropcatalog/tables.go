package dropcatalog

// DefaultSW is the built-in software drop-point table, grounded on the
// kernel function symbols mod_dropmon.c's loadDropPoints pulls in from
// dropPoints_sw.h. Exact entries resolve immediately; glob entries cover
// whole families of call sites (kernel inlines/renames within a family
// far more often than it renames the family itself).
var DefaultSW = []LoaderEntry{
	{Op: "==", Symbol: "kfree_skb_reason", Reason: "unknown"},
	{Op: "==", Symbol: "tcp_drop", Reason: "tcp_reset_closed"},
	{Op: "==", Symbol: "tcp_v4_do_rcv", Reason: "tcp_invalid_seq"},
	{Op: "==", Symbol: "tcp_v6_do_rcv", Reason: "tcp_invalid_seq"},
	{Op: "==", Symbol: "ip_rcv_finish", Reason: "ip_header_invalid"},
	{Op: "==", Symbol: "ip6_rcv_finish", Reason: "ip_header_invalid"},
	{Op: "==", Symbol: "nf_hook_slow", Reason: "netfilter_drop"},
	{Op: "==", Symbol: "__kfree_skb", Reason: ""},
	{Op: "*=", Symbol: "tcp_v?_rcv*", Reason: "tcp_invalid_seq"},
	{Op: "*=", Symbol: "icmp*_send", Reason: "ttl_exceeded"},
	{Op: "*=", Symbol: "ip_frag*", Reason: "ip_fragment_dropped"},
	{Op: "*=", Symbol: "nf_conntrack*", Reason: "netfilter_drop"},
	{Op: "*=", Symbol: "br_*", Reason: "bridge_drop"},
	// Unknown-operator entries loaded alongside these (if present in a
	// deployment's override file) are skipped with a warning rather than
	// aborting the whole load; see Load in catalog.go.
}

// DefaultHW is the built-in hardware (offload/devlink trap) drop-point
// table, grounded on mod_dropmon.c's dropPoints_hw.h table: group+name
// pairs raised by switch ASIC trap reporting.
var DefaultHW = []LoaderEntry{
	{Op: "==", Symbol: "source_mac_is_multicast", Reason: "acl_deny"},
	{Op: "==", Symbol: "vlan_tag_mismatch", Reason: "acl_deny"},
	{Op: "==", Symbol: "ttl_value_is_too_small", Reason: "ttl_exceeded"},
	{Op: "==", Symbol: "blackhole_route", Reason: "decap_error"},
	{Op: "*=", Symbol: "acl_*", Reason: "acl_deny"},
	{Op: "*=", Symbol: "l3_*drop*", Reason: "decap_error"},
}
