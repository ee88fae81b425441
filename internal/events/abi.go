package events

// GovernorABI holds the governor events the indexer consumes
const GovernorABI = `[
	{"type":"event","name":"ProposalCreated","anonymous":false,"inputs":[
		{"name":"proposalId","type":"uint256","indexed":false},
		{"name":"proposer","type":"address","indexed":false},
		{"name":"targets","type":"address[]","indexed":false},
		{"name":"values","type":"uint256[]","indexed":false},
		{"name":"signatures","type":"string[]","indexed":false},
		{"name":"calldatas","type":"bytes[]","indexed":false},
		{"name":"voteStart","type":"uint256","indexed":false},
		{"name":"voteEnd","type":"uint256","indexed":false},
		{"name":"description","type":"string","indexed":false}]},
	{"type":"event","name":"ProposalCanceled","anonymous":false,"inputs":[
		{"name":"proposalId","type":"uint256","indexed":false}]},
	{"type":"event","name":"ProposalExecuted","anonymous":false,"inputs":[
		{"name":"proposalId","type":"uint256","indexed":false}]},
	{"type":"event","name":"ProposalQueued","anonymous":false,"inputs":[
		{"name":"proposalId","type":"uint256","indexed":false},
		{"name":"eta","type":"uint256","indexed":false}]},
	{"type":"event","name":"VoteCast","anonymous":false,"inputs":[
		{"name":"voter","type":"address","indexed":true},
		{"name":"proposalId","type":"uint256","indexed":false},
		{"name":"support","type":"uint8","indexed":false},
		{"name":"weight","type":"uint256","indexed":false},
		{"name":"reason","type":"string","indexed":false}]},
	{"type":"event","name":"VoteCastWithParams","anonymous":false,"inputs":[
		{"name":"voter","type":"address","indexed":true},
		{"name":"proposalId","type":"uint256","indexed":false},
		{"name":"support","type":"uint8","indexed":false},
		{"name":"weight","type":"uint256","indexed":false},
		{"name":"reason","type":"string","indexed":false},
		{"name":"params","type":"bytes","indexed":false}]},
	{"type":"event","name":"ProposalThresholdSet","anonymous":false,"inputs":[
		{"name":"oldProposalThreshold","type":"uint256","indexed":false},
		{"name":"newProposalThreshold","type":"uint256","indexed":false}]},
	{"type":"event","name":"QuorumNumeratorUpdated","anonymous":false,"inputs":[
		{"name":"oldQuorumNumerator","type":"uint256","indexed":false},
		{"name":"newQuorumNumerator","type":"uint256","indexed":false}]},
	{"type":"event","name":"VotingDelaySet","anonymous":false,"inputs":[
		{"name":"oldVotingDelay","type":"uint256","indexed":false},
		{"name":"newVotingDelay","type":"uint256","indexed":false}]},
	{"type":"event","name":"VotingPeriodSet","anonymous":false,"inputs":[
		{"name":"oldVotingPeriod","type":"uint256","indexed":false},
		{"name":"newVotingPeriod","type":"uint256","indexed":false}]},
	{"type":"event","name":"TimelockChange","anonymous":false,"inputs":[
		{"name":"oldTimelock","type":"address","indexed":false},
		{"name":"newTimelock","type":"address","indexed":false}]}
]`

// SteleABI holds the challenge contract events the indexer consumes
const SteleABI = `[
	{"type":"event","name":"SteleCreated","anonymous":false,"inputs":[
		{"name":"owner","type":"address","indexed":false},
		{"name":"usdToken","type":"address","indexed":false},
		{"name":"maxAssets","type":"uint256","indexed":false},
		{"name":"seedMoney","type":"uint256","indexed":false},
		{"name":"entryFee","type":"uint256","indexed":false},
		{"name":"rewardRatio","type":"uint256[]","indexed":false}]},
	{"type":"event","name":"AddToken","anonymous":false,"inputs":[
		{"name":"tokenAddress","type":"address","indexed":false}]},
	{"type":"event","name":"RemoveToken","anonymous":false,"inputs":[
		{"name":"tokenAddress","type":"address","indexed":false}]},
	{"type":"event","name":"RewardRatio","anonymous":false,"inputs":[
		{"name":"newRewardRatio","type":"uint256[]","indexed":false}]},
	{"type":"event","name":"SeedMoney","anonymous":false,"inputs":[
		{"name":"newSeedMoney","type":"uint256","indexed":false}]},
	{"type":"event","name":"EntryFee","anonymous":false,"inputs":[
		{"name":"newEntryFee","type":"uint256","indexed":false}]},
	{"type":"event","name":"MaxAssets","anonymous":false,"inputs":[
		{"name":"newMaxAssets","type":"uint256","indexed":false}]},
	{"type":"event","name":"OwnershipTransferred","anonymous":false,"inputs":[
		{"name":"previousOwner","type":"address","indexed":true},
		{"name":"newOwner","type":"address","indexed":true}]},
	{"type":"event","name":"Create","anonymous":false,"inputs":[
		{"name":"challengeId","type":"uint256","indexed":false},
		{"name":"challengeType","type":"uint8","indexed":false},
		{"name":"seedMoney","type":"uint256","indexed":false},
		{"name":"entryFee","type":"uint256","indexed":false}]},
	{"type":"event","name":"Join","anonymous":false,"inputs":[
		{"name":"challengeId","type":"uint256","indexed":false},
		{"name":"user","type":"address","indexed":false},
		{"name":"seedMoney","type":"uint256","indexed":false}]},
	{"type":"event","name":"Swap","anonymous":false,"inputs":[
		{"name":"challengeId","type":"uint256","indexed":false},
		{"name":"user","type":"address","indexed":false},
		{"name":"fromAsset","type":"address","indexed":false},
		{"name":"toAsset","type":"address","indexed":false},
		{"name":"fromAmount","type":"uint256","indexed":false},
		{"name":"toAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"Register","anonymous":false,"inputs":[
		{"name":"challengeId","type":"uint256","indexed":false},
		{"name":"user","type":"address","indexed":false},
		{"name":"performance","type":"uint256","indexed":false}]},
	{"type":"event","name":"Reward","anonymous":false,"inputs":[
		{"name":"challengeId","type":"uint256","indexed":false},
		{"name":"user","type":"address","indexed":false},
		{"name":"rewardAmount","type":"uint256","indexed":false}]}
]`
