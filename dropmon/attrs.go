package dropmon

// NET_DM generic-netlink command and attribute constants, pulled out of
// mainline include/uapi/linux/net_dropmon.h — adapted from the teacher's
// own drop_mon.go, which sourced them the same way.

const (
	CmdUnspec = iota
	CmdAlert
	CmdConfig
	CmdStart
	CmdStop
	CmdPacketAlert
	CmdConfigGet
	CmdConfigNew
	CmdStatsGet
	CmdStatsNew
)

const (
	AttrUnspec       = iota
	AttrAlertMode    /* u8 */
	AttrPC           /* u64 */
	AttrSymbol       /* string */
	AttrInPort       /* nested */
	AttrTimestamp    /* u64 */
	AttrProto        /* u16 */
	AttrPayload      /* binary */
	AttrPad          /* pad */
	AttrTruncLen     /* u32 */
	AttrOrigLen      /* u32 */
	AttrQueueLen     /* u32 */
	AttrStats        /* nested */
	AttrHWStats      /* nested */
	AttrOrigin       /* u16 */
	AttrHWTrapGroupName /* string */
	AttrHWTrapName   /* string */
	AttrHWEntries    /* nested */
	AttrHWEntry      /* nested */
	AttrHWTrapCount  /* u32 */
	AttrSWDrops      /* flag */
	AttrHWDrops      /* flag */
)

const (
	GroupAlert = 1

	AlertModeSummary = 0
	AlertModePacket  = 1

	NAttrPortNetdevIfindex = 0 /* u32, nested under AttrInPort */
	NAttrPortNetdevName    = 1 /* string, nested under AttrInPort */

	OriginSW = 0
	OriginHW = 1

	// NLA_F_NESTED, the flag bit OR'd into nla_type for nested
	// attributes.
	attrFNested = 1 << 15
)

// Ethernet (ISO/IEC 8802-3) header-protocol code, used as the default
// frame protocol when the kernel omits one (spec §4.3 cross-check).
const headerProtocolEthernet = 1

// sFlow's default sampled-header truncation length.
const sflowDefaultHeaderSize = 128
